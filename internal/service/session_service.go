package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/apptly/apptly/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Session validation failures. Expired is reported separately from every
// other failure so clients can tell "log in again" apart from "go away".
var (
	ErrForbidden    = errors.New("invalid or missing token")
	ErrTokenExpired = errors.New("token has expired")
)

// SessionClaims is the payload of a session token. Validity is determined
// entirely by the signature and the embedded expiry; the server keeps no
// session state and has no revocation list.
type SessionClaims struct {
	ClientID string `json:"client_id"`
	RepID    string `json:"rep_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SessionService mints and validates the signed session tokens issued after
// a successful OTP verification.
type SessionService struct {
	secretKey []byte
	expiry    time.Duration
	logger    *logrus.Logger

	// now is swapped out in tests.
	now func() time.Time
}

func NewSessionService(cfg *config.JWTConfig, logger *logrus.Logger) (*SessionService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &SessionService{
		secretKey: secretKey,
		expiry:    cfg.SessionExpiry,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Mint produces a signed session token for a verified client.
func (s *SessionService) Mint(clientID, repID, role string) (string, error) {
	now := s.now()
	claims := &SessionClaims{
		ClientID: clientID,
		RepID:    repID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign session token")
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// Validate checks signature and expiry and returns the embedded claims.
// Returns ErrTokenExpired for a well-signed but stale token and ErrForbidden
// for everything else.
func (s *SessionService) Validate(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, ErrForbidden
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrForbidden
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrForbidden
	}

	return claims, nil
}
