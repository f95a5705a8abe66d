package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/apptly/apptly/internal/otp"
	"github.com/apptly/apptly/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	engine   *otp.Engine
	sessions *service.SessionService
	logger   *logrus.Logger
}

func NewAuthHandlers(engine *otp.Engine, sessions *service.SessionService, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		engine:   engine,
		sessions: sessions,
		logger:   logger,
	}
}

type RequestClientAuthRequest struct {
	ClientID string `json:"client_id"`
}

type RequestClientAuthResponse struct {
	Message string `json:"message"`
}

type ClientAuthRequest struct {
	ClientID string `json:"client_id"`
	OTP      string `json:"otp"`
}

type ClientAuthResponse struct {
	Token string `json:"token"`
}

// RequestClientAuth issues a one-time code for a client and texts it to the
// client's representative.
func (h *AuthHandlers) RequestClientAuth(w http.ResponseWriter, r *http.Request) {
	var req RequestClientAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	receipt, err := h.engine.RequestCode(r.Context(), strings.TrimSpace(req.ClientID))
	if err != nil {
		respondWithOTPError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, RequestClientAuthResponse{
		Message: "OTP sent successfully " + receipt,
	})
}

// ClientAuth verifies a submitted code and mints a session token.
func (h *AuthHandlers) ClientAuth(w http.ResponseWriter, r *http.Request) {
	var req ClientAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	verified, err := h.engine.VerifyCode(r.Context(), strings.TrimSpace(req.ClientID), strings.TrimSpace(req.OTP))
	if err != nil {
		respondWithOTPError(w, err)
		return
	}

	token, err := h.sessions.Mint(verified.ClientID, verified.RepID, "client")
	if err != nil {
		h.logger.WithError(err).Error("Failed to mint session token")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate token")
		return
	}

	respondWithJSON(w, http.StatusOK, ClientAuthResponse{Token: token})
}
