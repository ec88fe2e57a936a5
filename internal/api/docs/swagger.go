package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// PreviewData is the target region in frame coordinates
type PreviewData struct {
	MinX   float64 `json:"min_x" example:"25"`
	MinY   float64 `json:"min_y" example:"50"`
	Width  float64 `json:"width" example:"325"`
	Height float64 `json:"height" example:"325"`
}

// StateViewResponse is returned after every frame
type StateViewResponse struct {
	SessionID        string   `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Phase            string   `json:"phase" example:"DETECTING"`
	FaceDetected     bool     `json:"face_detected" example:"true"`
	FaceTooClose     bool     `json:"face_too_close" example:"false"`
	CurrentChallenge string   `json:"current_challenge,omitempty" example:"NOD"`
	ChallengeIndex   int      `json:"challenge_index" example:"3"`
	Challenges       []string `json:"challenges" example:"BLINK,TURN_HEAD_LEFT,TURN_HEAD_RIGHT,NOD,SMILE"`
	Prompt           string   `json:"prompt" example:"Keep the device still and perform the following actions:"`
	Instruction      string   `json:"instruction,omitempty" example:"Nod"`
	Progress         float64  `json:"progress" example:"66.67"`
	Complete         bool     `json:"complete" example:"false"`
	Dropped          bool     `json:"dropped" example:"false"`
	ResultToken      string   `json:"result_token,omitempty" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// SessionResponse describes a liveness session
type SessionResponse struct {
	SessionID  string            `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Framing    string            `json:"framing" example:"containment"`
	Preview    PreviewData       `json:"preview"`
	Challenges []string          `json:"challenges" example:"BLINK,TURN_HEAD_LEFT,TURN_HEAD_RIGHT,NOD,SMILE"`
	Frames     int               `json:"frames" example:"0"`
	ExpiresAt  string            `json:"expires_at" example:"2024-01-01T00:10:00Z"`
	CreatedAt  string            `json:"created_at" example:"2024-01-01T00:00:00Z"`
	State      StateViewResponse `json:"state"`
}

// VerifyTokenResponse carries the claims of a valid result token
type VerifyTokenResponse struct {
	Valid      bool     `json:"valid" example:"true"`
	Live       bool     `json:"live" example:"true"`
	SessionID  string   `json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ClientID   string   `json:"client_id" example:"acme"`
	Challenges []string `json:"challenges" example:"BLINK,SMILE"`
	IssuedAt   string   `json:"issued_at" example:"2024-01-01T00:01:00Z"`
	ExpiresAt  string   `json:"expires_at" example:"2024-01-01T00:06:00Z"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

var (
	errUnauthorized    = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"}, "401", "Unauthorized")
	errSessionNotFound = response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Liveness session not found or expired"}, "404", "Not Found")
	errSessionExpired  = response.New(ErrorResponse{Code: "SESSION_EXPIRED", Message: "Liveness session has expired"}, "410", "Gone")
	errValidation      = response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity")
	errRateLimited     = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded, please try again later"}, "429", "Too Many Requests")
	errInternal        = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
)

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Liveguard Liveness API",
		Version:     "v1.0.0",
		Description: "Active liveness detection: a client streams face observations while the user blinks, turns the head, nods and smiles on request",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// Liveness endpoints (API key)

		// POST /v1/liveness/sessions - Create session
		endpoint.New(
			endpoint.POST,
			"/liveness/sessions",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Start a liveness session"),
			endpoint.WithDescription("Creates a session with the default challenge order unless challenges, shuffle, framing or preview are given. An empty body keeps every default."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "201", "Session created"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errValidation,
				response.New(ErrorResponse{Code: "INVALID_CHALLENGE_ORDER", Message: "Challenge order contains unknown or repeated challenges"}, "422", "Unprocessable Entity"),
				errRateLimited,
				errInternal,
			}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),

		// GET /v1/liveness/sessions/{id} - Get session
		endpoint.New(
			endpoint.GET,
			"/liveness/sessions/{id}",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Get a liveness session"),
			endpoint.WithDescription("Returns the session and its current state view"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session UUID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Session retrieved"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errSessionNotFound, errSessionExpired, errInternal}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),

		// DELETE /v1/liveness/sessions/{id} - Delete session
		endpoint.New(
			endpoint.DELETE,
			"/liveness/sessions/{id}",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Discard a liveness session"),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session UUID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Session deleted"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errSessionNotFound, errInternal}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),

		// POST /v1/liveness/tokens/verify - Verify result token
		endpoint.New(
			endpoint.POST,
			"/liveness/tokens/verify",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Verify a result token"),
			endpoint.WithDescription("Checks the signature, expiry and audience of a token issued when a session completed"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerifyTokenResponse{}, "200", "Token is valid"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "INVALID_TOKEN", Message: "Result token is invalid or expired"}, "401", "Unauthorized"),
				errValidation,
			}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),

		// GET /v1/liveness/sessions/{id}/events - Watch session (websocket)
		endpoint.New(
			endpoint.GET,
			"/liveness/sessions/{id}/events",
			endpoint.WithTags("Liveness"),
			endpoint.WithSummary("Watch session events"),
			endpoint.WithDescription("WebSocket upgrade. Streams challenge.passed, session.reset, session.completed and session.closed events."),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session UUID"))),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errSessionNotFound,
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),

		// Widget endpoints (session id)

		// POST /v1/widget/liveness/{id}/frames - Submit detector output
		endpoint.New(
			endpoint.POST,
			"/widget/liveness/{id}/frames",
			endpoint.WithTags("Widget"),
			endpoint.WithSummary("Submit one frame of face observations"),
			endpoint.WithDescription("Applies the faces found by a client side detector. Zero or several faces count as no face. A frame arriving while another is processed is dropped and the current state returned with dropped=true."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session UUID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StateViewResponse{}, "200", "Frame applied"),
			}),
			endpoint.WithErrors([]response.Response{errSessionNotFound, errSessionExpired, errValidation, errRateLimited}),
		),

		// POST /v1/widget/liveness/{id}/images - Submit camera image
		endpoint.New(
			endpoint.POST,
			"/widget/liveness/{id}/images",
			endpoint.WithTags("Widget"),
			endpoint.WithSummary("Submit one camera image"),
			endpoint.WithDescription("Runs server side face detection on the image field (JPEG, PNG or WebP) and applies the result as one frame"),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session UUID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StateViewResponse{}, "200", "Frame applied"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				errSessionExpired,
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted file"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "DETECTION_FAILED", Message: "Face detection provider failed"}, "502", "Bad Gateway"),
				response.New(ErrorResponse{Code: "DETECTOR_UNAVAILABLE", Message: "Server side face detection is not configured"}, "503", "Service Unavailable"),
			}),
		),

		// POST /v1/widget/liveness/{id}/reset - Reset session
		endpoint.New(
			endpoint.POST,
			"/widget/liveness/{id}/reset",
			endpoint.WithTags("Widget"),
			endpoint.WithSummary("Restart the challenges"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session UUID"))),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StateViewResponse{}, "200", "Session reset"),
			}),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "SESSION_COMPLETE", Message: "Liveness session is already complete"}, "409", "Conflict"),
			}),
		),

		// GET /v1/widget/liveness/{id}/stream - Frame stream (websocket)
		endpoint.New(
			endpoint.GET,
			"/widget/liveness/{id}/stream",
			endpoint.WithTags("Widget"),
			endpoint.WithSummary("Stream frames over a WebSocket"),
			endpoint.WithDescription("WebSocket upgrade. Each {\"faces\":[...]} message, as JSON text or CBOR binary, is answered with one state view in the same encoding. The server closes the socket once the session completes."),
			endpoint.WithParams(parameter.StrParam("id", parameter.Path, parameter.WithDescription("Liveness session UUID"))),
			endpoint.WithErrors([]response.Response{
				errSessionNotFound,
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
