package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/apptly/apptly/internal/config"
	"github.com/apptly/apptly/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "12345"
	testRepID    = "77"
	testRepPhone = "0501234567"
)

type fakeDirectory struct {
	clients map[string]*models.Client
	reps    map[string]*models.Representative
	err     error
}

func (d *fakeDirectory) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.clients[clientID], nil
}

func (d *fakeDirectory) GetRepresentative(ctx context.Context, repID string) (*models.Representative, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.reps[repID], nil
}

type sentMessage struct {
	phone string
	code  string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) SendCode(ctx context.Context, phone, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentMessage{phone: phone, code: code})
	return "receipt-ok", nil
}

func (s *fakeSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1].code
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *fakeSender, *fakeClock) {
	t.Helper()

	dir := &fakeDirectory{
		clients: map[string]*models.Client{
			testClientID: {ClientID: testClientID, ClientName: "Acme", ClientRep: testRepID},
		},
		reps: map[string]*models.Representative{
			testRepID: {RepID: testRepID, RepFirstname: "Dana", RepPhone: testRepPhone},
		},
	}
	sender := &fakeSender{}
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.OTPConfig{
		Length:      6,
		Expiry:      10 * time.Minute,
		MaxAttempts: 5,
		BlockTime:   2 * time.Hour,
	}

	engine := NewEngine(dir, sender, cfg, logger)
	engine.now = clock.Now
	return engine, sender, clock
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, "expected kind %s, got %s", kind, e.Kind)
	return e
}

func TestRequestCodeInvalidIdentity(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	for _, id := range []string{"", "12a45", "+12345", "12345 ", "one"} {
		_, err := engine.RequestCode(context.Background(), id)
		requireKind(t, err, KindInvalidIdentity)
	}
}

func TestRequestCodeUnknownClient(t *testing.T) {
	engine, sender, _ := newTestEngine(t)

	_, err := engine.RequestCode(context.Background(), "99999")
	requireKind(t, err, KindIdentityNotFound)
	assert.Empty(t, sender.sent)
}

func TestRequestCodeDirectoryFailure(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.dir.(*fakeDirectory).err = errors.New("connection refused")

	_, err := engine.RequestCode(context.Background(), testClientID)
	requireKind(t, err, KindDependencyUnavailable)
}

func TestRequestCodeDeliversToRepresentative(t *testing.T) {
	engine, sender, _ := newTestEngine(t)

	receipt, err := engine.RequestCode(context.Background(), testClientID)
	require.NoError(t, err)
	assert.Equal(t, "receipt-ok", receipt)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, testRepPhone, sender.sent[0].phone)
	assert.Len(t, sender.sent[0].code, 6)
	assert.Regexp(t, `^\d{6}$`, sender.sent[0].code)
}

func TestResendReusesUnexpiredCode(t *testing.T) {
	engine, sender, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	_, err = engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, sender.sent[0].code, sender.sent[1].code, "resend within the validity window must not rotate the code")
}

func TestExpiredCodeIsRotatedOnRequest(t *testing.T) {
	engine, sender, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)
	oldCode := sender.lastCode()

	clock.Advance(10*time.Minute + time.Second)
	_, err = engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)

	// The stale code must be dead regardless of what was just issued.
	clock.Advance(time.Second)
	if oldCode != sender.lastCode() {
		_, err = engine.VerifyCode(ctx, testClientID, oldCode)
		requireKind(t, err, KindIncorrectCode)
	}

	verified, err := engine.VerifyCode(ctx, testClientID, sender.lastCode())
	require.NoError(t, err)
	assert.Equal(t, testClientID, verified.ClientID)
}

func TestVerifyCodeSuccess(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)

	verified, err := engine.VerifyCode(ctx, testClientID, sender.lastCode())
	require.NoError(t, err)
	assert.Equal(t, testClientID, verified.ClientID)
	assert.Equal(t, testRepID, verified.RepID)
}

func TestVerifyCodeConsumedAfterSuccess(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)
	code := sender.lastCode()

	_, err = engine.VerifyCode(ctx, testClientID, code)
	require.NoError(t, err)

	_, err = engine.VerifyCode(ctx, testClientID, code)
	requireKind(t, err, KindNoActiveRequest)
}

func TestVerifyCodeNoActiveRequest(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.VerifyCode(context.Background(), testClientID, "123456")
	requireKind(t, err, KindNoActiveRequest)
}

func TestVerifyCodeIncorrectReportsRemaining(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)
	wrong := wrongCode(sender.lastCode())

	for i := 1; i <= 4; i++ {
		_, err := engine.VerifyCode(ctx, testClientID, wrong)
		e := requireKind(t, err, KindIncorrectCode)
		assert.Equal(t, 5-i, e.Remaining)
	}
}

func TestVerifyCodeLockout(t *testing.T) {
	engine, sender, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)
	code := sender.lastCode()
	wrong := wrongCode(code)

	for i := 0; i < 4; i++ {
		_, err := engine.VerifyCode(ctx, testClientID, wrong)
		requireKind(t, err, KindIncorrectCode)
	}

	_, err = engine.VerifyCode(ctx, testClientID, wrong)
	e := requireKind(t, err, KindVerifyLimitExceeded)
	assert.Equal(t, 2*time.Hour, e.BlockedFor)

	// Even the correct code is refused while the block holds.
	_, err = engine.VerifyCode(ctx, testClientID, code)
	requireKind(t, err, KindVerifyBlocked)

	clock.Advance(2*time.Hour - time.Minute)
	_, err = engine.VerifyCode(ctx, testClientID, code)
	requireKind(t, err, KindVerifyBlocked)

	// Block lapses; the code state was purged at lockout so the client has
	// to start over.
	clock.Advance(2 * time.Minute)
	_, err = engine.VerifyCode(ctx, testClientID, code)
	requireKind(t, err, KindNoActiveRequest)

	_, err = engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)
	verified, err := engine.VerifyCode(ctx, testClientID, sender.lastCode())
	require.NoError(t, err)
	assert.Equal(t, testClientID, verified.ClientID)
}

func TestVerifyCodeExpired(t *testing.T) {
	engine, sender, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)
	code := sender.lastCode()

	clock.Advance(10*time.Minute + time.Second)
	_, err = engine.VerifyCode(ctx, testClientID, code)
	requireKind(t, err, KindExpired)

	// Expiry detection purges the record, so the follow-up differs.
	_, err = engine.VerifyCode(ctx, testClientID, code)
	requireKind(t, err, KindNoActiveRequest)
}

func TestResendLimitBlocksForBlockTime(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := engine.RequestCode(ctx, testClientID)
		require.NoError(t, err, "request %d should be within the resend cap", i+1)
	}

	_, err := engine.RequestCode(ctx, testClientID)
	e := requireKind(t, err, KindResendLimitExceeded)
	assert.Equal(t, 2*time.Hour, e.BlockedFor)

	_, err = engine.RequestCode(ctx, testClientID)
	requireKind(t, err, KindResendBlocked)

	clock.Advance(2*time.Hour - time.Second)
	_, err = engine.RequestCode(ctx, testClientID)
	requireKind(t, err, KindResendBlocked)

	// Block lapses and the resend counter starts over.
	clock.Advance(2 * time.Second)
	_, err = engine.RequestCode(ctx, testClientID)
	require.NoError(t, err)
}

func TestDeliveryFailureSpendsResendAttempt(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	sender.err = errors.New("gateway timeout")
	for i := 0; i < 5; i++ {
		_, err := engine.RequestCode(ctx, testClientID)
		requireKind(t, err, KindDeliveryFailed)
	}

	// Five failed deliveries still consumed the whole resend budget.
	sender.err = nil
	_, err := engine.RequestCode(ctx, testClientID)
	requireKind(t, err, KindResendLimitExceeded)
}

func TestSuccessfulVerifyClearsAllState(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	// Burn some resend and verify attempts.
	for i := 0; i < 3; i++ {
		_, err := engine.RequestCode(ctx, testClientID)
		require.NoError(t, err)
	}
	_, err := engine.VerifyCode(ctx, testClientID, wrongCode(sender.lastCode()))
	requireKind(t, err, KindIncorrectCode)

	_, err = engine.VerifyCode(ctx, testClientID, sender.lastCode())
	require.NoError(t, err)

	// A fresh cycle gets the full budget back.
	for i := 0; i < 5; i++ {
		_, err := engine.RequestCode(ctx, testClientID)
		require.NoError(t, err, "request %d after reset should succeed", i+1)
	}
	_, err = engine.VerifyCode(ctx, testClientID, wrongCode(sender.lastCode()))
	e := requireKind(t, err, KindIncorrectCode)
	assert.Equal(t, 4, e.Remaining)
}

func TestConcurrentRequestsShareOneCode(t *testing.T) {
	engine, sender, _ := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.RequestCode(ctx, testClientID)
		}(i)
	}
	wg.Wait()

	// Per-identity locking makes the attempt counter exact: 5 requests get
	// through, the rest are throttled.
	var ok, blocked int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		kind, isEngine := KindOf(err)
		require.True(t, isEngine)
		assert.Contains(t, []Kind{KindResendLimitExceeded, KindResendBlocked}, kind)
		blocked++
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, blocked)

	// And every delivered SMS carried the same code.
	require.Len(t, sender.sent, 5)
	for _, msg := range sender.sent {
		assert.Equal(t, sender.sent[0].code, msg.code)
	}
}

// wrongCode returns a six-digit code guaranteed to differ from code.
func wrongCode(code string) string {
	if code != "000000" {
		return "000000"
	}
	return "000001"
}

func TestGenerateCodeFormat(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := engine.generateCode(6)
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, fmt.Sprintf("50 generated codes were all identical: %v", seen))
}
