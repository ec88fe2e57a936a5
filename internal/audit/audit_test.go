package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_Log(t *testing.T) {
	tests := []struct {
		name          string
		event         Event
		wantEventType string
		wantSuccess   bool
		wantHasError  bool
	}{
		{
			name: "session created",
			event: Event{
				SessionID: uuid.New(),
				ClientID:  "acme",
				EventType: EventSessionCreated,
				Success:   true,
				Metadata:  map[string]string{"order": "BLINK,SMILE"},
			},
			wantEventType: string(EventSessionCreated),
			wantSuccess:   true,
		},
		{
			name: "challenge passed",
			event: Event{
				SessionID: uuid.New(),
				ClientID:  "acme",
				EventType: EventChallengePassed,
				Challenge: "NOD",
				Success:   true,
			},
			wantEventType: string(EventChallengePassed),
			wantSuccess:   true,
		},
		{
			name: "failed image detection",
			event: Event{
				SessionID: uuid.New(),
				ClientID:  "acme",
				EventType: EventImageDetected,
				Provider:  "rekognition",
				Success:   false,
				Error:     "throttled",
			},
			wantEventType: string(EventImageDetected),
			wantSuccess:   false,
			wantHasError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			auditLogger := NewSlogLogger(logger)

			err := auditLogger.Log(context.Background(), tt.event)
			require.NoError(t, err)

			var logEntry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

			assert.Equal(t, "audit_event", logEntry["msg"])
			assert.Equal(t, "audit", logEntry["component"])
			assert.Equal(t, tt.wantEventType, logEntry["event_type"])
			assert.Equal(t, tt.event.SessionID.String(), logEntry["session_id"])
			assert.Equal(t, tt.event.ClientID, logEntry["client_id"])
			assert.Equal(t, tt.wantSuccess, logEntry["success"])
			assert.NotEmpty(t, logEntry["event_id"])

			var eventData Event
			require.NoError(t, json.Unmarshal([]byte(logEntry["event_data"].(string)), &eventData))
			assert.False(t, eventData.Timestamp.IsZero())
			if tt.wantHasError {
				assert.NotEmpty(t, eventData.Error)
			} else {
				assert.Empty(t, eventData.Error)
			}
		})
	}
}

func TestSlogLogger_KeepsProvidedID(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	id := uuid.New()

	require.NoError(t, auditLogger.Log(context.Background(), Event{ID: id, EventType: EventSessionDeleted}))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, id.String(), logEntry["event_id"])
}

func TestNoOpLogger(t *testing.T) {
	logger := &NoOpLogger{}
	err := logger.Log(context.Background(), Event{EventType: EventSessionCompleted})
	assert.NoError(t, err)
}
