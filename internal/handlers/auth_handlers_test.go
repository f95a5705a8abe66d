package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apptly/apptly/internal/config"
	"github.com/apptly/apptly/internal/models"
	"github.com/apptly/apptly/internal/otp"
	"github.com/apptly/apptly/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	clients map[string]*models.Client
	reps    map[string]*models.Representative
}

func (d *stubDirectory) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	return d.clients[clientID], nil
}

func (d *stubDirectory) GetRepresentative(ctx context.Context, repID string) (*models.Representative, error) {
	return d.reps[repID], nil
}

type stubSender struct {
	mu    sync.Mutex
	codes []string
}

func (s *stubSender) SendCode(ctx context.Context, phone, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	return "msg-id-1", nil
}

func (s *stubSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func newTestAuthHandlers(t *testing.T) (*AuthHandlers, *stubSender, *service.SessionService) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	dir := &stubDirectory{
		clients: map[string]*models.Client{
			"12345": {ClientID: "12345", ClientName: "Acme", ClientRep: "77"},
		},
		reps: map[string]*models.Representative{
			"77": {RepID: "77", RepPhone: "0501234567"},
		},
	}
	sender := &stubSender{}

	engine := otp.NewEngine(dir, sender, &config.OTPConfig{
		Length:      6,
		Expiry:      10 * time.Minute,
		MaxAttempts: 5,
		BlockTime:   2 * time.Hour,
	}, logger)

	sessions, err := service.NewSessionService(&config.JWTConfig{
		SecretKey:     "0123456789abcdef0123456789abcdef",
		SessionExpiry: 24 * time.Hour,
	}, logger)
	require.NoError(t, err)

	return NewAuthHandlers(engine, sessions, logger), sender, sessions
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRequestClientAuthSuccess(t *testing.T) {
	h, sender, _ := newTestAuthHandlers(t)

	rec := postJSON(t, h.RequestClientAuth, "/requestClientAuth",
		RequestClientAuthRequest{ClientID: "12345"})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp RequestClientAuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Message, "OTP sent successfully"))
	assert.Contains(t, resp.Message, "msg-id-1")
	assert.Len(t, sender.lastCode(), 6)
}

func TestRequestClientAuthInvalidID(t *testing.T) {
	h, _, _ := newTestAuthHandlers(t)

	rec := postJSON(t, h.RequestClientAuth, "/requestClientAuth",
		RequestClientAuthRequest{ClientID: "12a45"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_IDENTITY", decodeError(t, rec).Code)
}

func TestRequestClientAuthUnknownClient(t *testing.T) {
	h, _, _ := newTestAuthHandlers(t)

	rec := postJSON(t, h.RequestClientAuth, "/requestClientAuth",
		RequestClientAuthRequest{ClientID: "99999"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "IDENTITY_NOT_FOUND", decodeError(t, rec).Code)
}

func TestRequestClientAuthMalformedBody(t *testing.T) {
	h, _, _ := newTestAuthHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/requestClientAuth", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.RequestClientAuth(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
}

func TestRequestClientAuthResendLimit(t *testing.T) {
	h, _, _ := newTestAuthHandlers(t)

	for i := 0; i < 5; i++ {
		rec := postJSON(t, h.RequestClientAuth, "/requestClientAuth",
			RequestClientAuthRequest{ClientID: "12345"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := postJSON(t, h.RequestClientAuth, "/requestClientAuth",
		RequestClientAuthRequest{ClientID: "12345"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, "RESEND_LIMIT_EXCEEDED", detail.Code)
	assert.Equal(t, int64(7200), detail.RetryAfterSeconds)
}

func TestClientAuthSuccessMintsValidToken(t *testing.T) {
	h, sender, sessions := newTestAuthHandlers(t)

	rec := postJSON(t, h.RequestClientAuth, "/requestClientAuth",
		RequestClientAuthRequest{ClientID: "12345"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.ClientAuth, "/clientAuth",
		ClientAuthRequest{ClientID: "12345", OTP: sender.lastCode()})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClientAuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := sessions.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "12345", claims.ClientID)
	assert.Equal(t, "77", claims.RepID)
	assert.Equal(t, "client", claims.Role)
}

func TestClientAuthWrongCodeReportsRemaining(t *testing.T) {
	h, sender, _ := newTestAuthHandlers(t)

	rec := postJSON(t, h.RequestClientAuth, "/requestClientAuth",
		RequestClientAuthRequest{ClientID: "12345"})
	require.Equal(t, http.StatusOK, rec.Code)

	wrong := "000000"
	if sender.lastCode() == wrong {
		wrong = "000001"
	}

	rec = postJSON(t, h.ClientAuth, "/clientAuth",
		ClientAuthRequest{ClientID: "12345", OTP: wrong})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, "INCORRECT_CODE", detail.Code)
	require.NotNil(t, detail.RemainingAttempts)
	assert.Equal(t, 4, *detail.RemainingAttempts)
}

func TestClientAuthWithoutRequest(t *testing.T) {
	h, _, _ := newTestAuthHandlers(t)

	rec := postJSON(t, h.ClientAuth, "/clientAuth",
		ClientAuthRequest{ClientID: "12345", OTP: "123456"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NO_ACTIVE_REQUEST", decodeError(t, rec).Code)
}

func TestClientAuthVerifyLockout(t *testing.T) {
	h, sender, _ := newTestAuthHandlers(t)

	rec := postJSON(t, h.RequestClientAuth, "/requestClientAuth",
		RequestClientAuthRequest{ClientID: "12345"})
	require.Equal(t, http.StatusOK, rec.Code)
	code := sender.lastCode()

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}

	for i := 0; i < 4; i++ {
		rec := postJSON(t, h.ClientAuth, "/clientAuth",
			ClientAuthRequest{ClientID: "12345", OTP: wrong})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec = postJSON(t, h.ClientAuth, "/clientAuth",
		ClientAuthRequest{ClientID: "12345", OTP: wrong})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "VERIFY_LIMIT_EXCEEDED", decodeError(t, rec).Code)

	// The correct code is refused while the lockout holds.
	rec = postJSON(t, h.ClientAuth, "/clientAuth",
		ClientAuthRequest{ClientID: "12345", OTP: code})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "VERIFY_BLOCKED", decodeError(t, rec).Code)
}
