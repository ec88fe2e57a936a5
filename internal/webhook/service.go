package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

const (
	DefaultMaxAttempts = 5
	maxQueueSize       = 1000
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Service signs and posts events to a single endpoint. Failed deliveries are
// kept in memory and retried by a Worker.
type Service struct {
	url         string
	secret      string
	client      *http.Client
	maxAttempts int
	now         func() time.Time

	mu    sync.Mutex
	queue []*Job
}

func NewService(url, secret string) *Service {
	return &Service{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
}

// Enabled reports whether a target URL is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.url != ""
}

// Send delivers event once. On failure the payload is queued for retry and
// the delivery error is returned.
func (s *Service) Send(ctx context.Context, event EventPayload) error {
	if !s.Enabled() {
		return nil
	}

	payload, err := codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := s.post(ctx, event.Type, payload); err != nil {
		s.enqueue(event.Type, payload, err.Error())
		return err
	}
	return nil
}

func (s *Service) post(ctx context.Context, eventType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Liveness-Signature", Sign(s.secret, payload))
	req.Header.Set("X-Liveness-Event", eventType)
	req.Header.Set("User-Agent", "Liveguard-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", eventType, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("deliver %s: HTTP %d", eventType, resp.StatusCode)
	}
	return nil
}

func (s *Service) enqueue(eventType string, payload []byte, errorMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Oldest job is dropped when the queue is full.
	if len(s.queue) >= maxQueueSize {
		s.queue = s.queue[1:]
	}

	now := s.now()
	s.queue = append(s.queue, &Job{
		ID:          uuid.New(),
		EventType:   eventType,
		Payload:     payload,
		Attempts:    1,
		MaxAttempts: s.maxAttempts,
		NextRetryAt: now.Add(time.Second),
		LastError:   errorMsg,
		CreatedAt:   now,
	})
}

// Pending returns the number of queued jobs.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// due removes and returns the jobs whose retry time has passed.
func (s *Service) due(limit int) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var ready []*Job
	rest := s.queue[:0]
	for _, job := range s.queue {
		if len(ready) < limit && !job.NextRetryAt.After(now) {
			ready = append(ready, job)
			continue
		}
		rest = append(rest, job)
	}
	s.queue = rest
	return ready
}

func (s *Service) requeue(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, job)
}
