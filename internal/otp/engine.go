package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/apptly/apptly/internal/config"
	"github.com/apptly/apptly/internal/models"
	"github.com/sirupsen/logrus"
)

// Directory resolves client identities against the credential store. A nil
// client with a nil error means the identity does not exist.
type Directory interface {
	GetClient(ctx context.Context, clientID string) (*models.Client, error)
	GetRepresentative(ctx context.Context, repID string) (*models.Representative, error)
}

// Sender delivers a one-time code to a phone number and returns the
// provider's delivery receipt as an opaque string.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) (string, error)
}

// Verified is the result of a successful code verification, carrying what the
// session issuer needs to mint a token.
type Verified struct {
	ClientID string
	RepID    string
}

var identityPattern = regexp.MustCompile(`^\d+$`)

// Engine is the per-identity OTP state machine: code issuance, resend
// throttling, verification attempts, and lockout.
type Engine struct {
	dir    Directory
	sender Sender
	cfg    *config.OTPConfig
	store  *store
	logger *logrus.Logger

	// now is swapped out in tests.
	now func() time.Time
}

func NewEngine(dir Directory, sender Sender, cfg *config.OTPConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		dir:    dir,
		sender: sender,
		cfg:    cfg,
		store:  newStore(),
		logger: logger,
		now:    time.Now,
	}
}

// RequestCode issues (or re-sends) the one-time code for clientID and
// delivers it to the client's representative. The returned string is the SMS
// provider's delivery receipt.
//
// While an unexpired code exists it is re-sent as-is rather than rotated, so
// a client who requests twice and then types the first SMS still succeeds.
func (e *Engine) RequestCode(ctx context.Context, clientID string) (string, error) {
	if !identityPattern.MatchString(clientID) {
		return "", &Error{Kind: KindInvalidIdentity, Message: "Invalid client ID format"}
	}

	ent := e.store.acquire(clientID)
	defer ent.mu.Unlock()

	now := e.now()

	if ent.resendBlockedUntil.After(now) {
		return "", &Error{
			Kind:       KindResendBlocked,
			Message:    "Maximum OTP attempts exceeded. Please try again later.",
			BlockedFor: e.cfg.BlockTime,
		}
	}
	if !ent.resendBlockedUntil.IsZero() {
		// Block has lapsed; the identity starts over.
		ent.resendBlockedUntil = time.Time{}
		ent.resendAttempts = 0
	}

	client, err := e.dir.GetClient(ctx, clientID)
	if err != nil {
		return "", &Error{Kind: KindDependencyUnavailable, Message: "Could not look up client", Err: err}
	}
	if client == nil {
		return "", &Error{Kind: KindIdentityNotFound, Message: "Client not found"}
	}

	rep, err := e.dir.GetRepresentative(ctx, client.ClientRep)
	if err != nil {
		return "", &Error{Kind: KindDependencyUnavailable, Message: "Could not look up client representative", Err: err}
	}
	if rep == nil {
		return "", &Error{Kind: KindDependencyUnavailable, Message: "Client representative not found"}
	}

	if ent.record != nil {
		ent.resendAttempts++
		if now.After(ent.record.expiresAt) {
			// The previous code timed out unused; rotate it but keep the
			// resend count running.
			if err := e.rotateRecord(ent, now); err != nil {
				return "", err
			}
		}
	} else {
		if err := e.rotateRecord(ent, now); err != nil {
			return "", err
		}
		ent.resendAttempts = 1
	}

	if ent.resendAttempts > e.cfg.MaxAttempts {
		ent.resendBlockedUntil = now.Add(e.cfg.BlockTime)
		e.logger.WithField("client_id", clientID).Warn("Resend limit exceeded, identity blocked")
		return "", &Error{
			Kind:       KindResendLimitExceeded,
			Message:    "Maximum OTP attempts exceeded. Please try again later.",
			BlockedFor: e.cfg.BlockTime,
		}
	}

	receipt, err := e.sender.SendCode(ctx, rep.RepPhone, ent.record.code)
	if err != nil {
		// The resend attempt stays spent: a flaky gateway must not grant
		// unlimited retries.
		e.logger.WithError(err).WithField("client_id", clientID).Error("Failed to deliver OTP")
		return "", &Error{Kind: KindDeliveryFailed, Message: "Could not deliver OTP", Err: err}
	}

	e.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"resends":   ent.resendAttempts,
	}).Info("OTP issued")

	return receipt, nil
}

// VerifyCode checks a submitted code. On success the whole identity state,
// blocks included, is cleared and the linked representative id is returned
// for session minting.
func (e *Engine) VerifyCode(ctx context.Context, clientID, code string) (*Verified, error) {
	if !identityPattern.MatchString(clientID) {
		return nil, &Error{Kind: KindInvalidIdentity, Message: "Invalid client ID format"}
	}

	ent := e.store.acquire(clientID)
	defer ent.mu.Unlock()

	now := e.now()

	// Blocks outlive the record, so this check comes before the record
	// lookup: a verify-exhausted identity stays blocked even though its
	// code state is long gone.
	if ent.verifyBlockedUntil.After(now) {
		return nil, &Error{
			Kind:       KindVerifyBlocked,
			Message:    "Maximum OTP attempts exceeded. Please try again later.",
			BlockedFor: e.cfg.BlockTime,
		}
	}

	if ent.record == nil {
		return nil, &Error{Kind: KindNoActiveRequest, Message: "OTP not requested or expired"}
	}

	if now.After(ent.record.expiresAt) {
		ent.record = nil
		return nil, &Error{Kind: KindExpired, Message: "OTP expired. Please request a new OTP."}
	}

	if subtle.ConstantTimeCompare([]byte(ent.record.code), []byte(code)) == 1 {
		client, err := e.dir.GetClient(ctx, clientID)
		if err != nil || client == nil {
			return nil, &Error{Kind: KindDependencyUnavailable, Message: "Could not look up client", Err: err}
		}

		ent.record = nil
		ent.resendAttempts = 0
		ent.verifyBlockedUntil = time.Time{}
		ent.resendBlockedUntil = time.Time{}

		e.logger.WithField("client_id", clientID).Info("OTP verified")
		return &Verified{ClientID: clientID, RepID: client.ClientRep}, nil
	}

	ent.record.verifyAttempts++
	if ent.record.verifyAttempts >= e.cfg.MaxAttempts {
		ent.verifyBlockedUntil = now.Add(e.cfg.BlockTime)
		ent.record = nil
		e.logger.WithField("client_id", clientID).Warn("Verify limit exceeded, identity blocked")
		return nil, &Error{
			Kind:       KindVerifyLimitExceeded,
			Message:    "Maximum OTP attempts exceeded. Please try again later.",
			BlockedFor: e.cfg.BlockTime,
		}
	}

	remaining := e.cfg.MaxAttempts - ent.record.verifyAttempts
	return nil, &Error{
		Kind:      KindIncorrectCode,
		Message:   fmt.Sprintf("Invalid OTP. %d attempts left", remaining),
		Remaining: remaining,
	}
}

// rotateRecord installs a fresh code and resets the verify counter. Called
// with the entry lock held.
func (e *Engine) rotateRecord(ent *entry, now time.Time) error {
	code, err := e.generateCode(e.cfg.Length)
	if err != nil {
		return &Error{Kind: KindDependencyUnavailable, Message: "Could not generate OTP", Err: err}
	}
	ent.record = &record{
		code:      code,
		expiresAt: now.Add(e.cfg.Expiry),
	}
	return nil
}

func (e *Engine) generateCode(length int) (string, error) {
	code := ""
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code += num.String()
	}
	return code, nil
}
