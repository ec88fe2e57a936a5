package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when token is expired
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidClaims is returned when claims are invalid
	ErrInvalidClaims = errors.New("invalid claims")
)

// ResultClaims attest that a liveness session passed every challenge
type ResultClaims struct {
	SessionID  uuid.UUID `json:"session_id"`
	ClientID   string    `json:"client_id"`
	Challenges []string  `json:"challenges"`
	Live       bool      `json:"live"`
	jwt.RegisteredClaims
}

// ResultService signs and verifies liveness result tokens
type ResultService struct {
	secretKey []byte
	issuer    string
	expiresIn time.Duration
}

// NewResultService creates a new result token service
func NewResultService(secretKey, issuer string, expiresIn time.Duration) *ResultService {
	return &ResultService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		expiresIn: expiresIn,
	}
}

// Issue generates a signed token for a completed session. The audience is
// the client that opened the session.
func (s *ResultService) Issue(sessionID uuid.UUID, clientID string, challenges []string) (string, error) {
	now := time.Now()
	claims := ResultClaims{
		SessionID:  sessionID,
		ClientID:   clientID,
		Challenges: challenges,
		Live:       true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   sessionID.String(),
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Verify validates and parses a result token. When clientID is not empty
// the token must have been issued to that client.
func (s *ResultService) Verify(tokenString, clientID string) (*ResultClaims, error) {
	opts := []jwt.ParserOption{jwt.WithIssuer(s.issuer)}
	if clientID != "" {
		opts = append(opts, jwt.WithAudience(clientID))
	}

	token, err := jwt.ParseWithClaims(tokenString, &ResultClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ResultClaims)
	if !ok || !token.Valid || !claims.Live {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}
