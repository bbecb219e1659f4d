package fiat_test

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glosapay/glosapay/internal/clock"
	"github.com/glosapay/glosapay/internal/dupguard"
	"github.com/glosapay/glosapay/internal/errs"
	"github.com/glosapay/glosapay/internal/fiat"
	"github.com/glosapay/glosapay/internal/queue"
	"github.com/glosapay/glosapay/internal/webhook"
)

type recorder struct {
	mu     sync.Mutex
	events []webhook.Event
}

func (r *recorder) Dispatch(event webhook.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) byType(t webhook.EventType) []webhook.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []webhook.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeAutomator scripts the portal session for a single test.
type fakeAutomator struct {
	loginErr   error
	receipt    []byte
	receiptErr error
	found      bool
	findErr    error
}

func (f *fakeAutomator) Login(ctx context.Context) error { return f.loginErr }

func (f *fakeAutomator) GenerateReceipt(ctx context.Context, amount float64, memo string) ([]byte, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

func (f *fakeAutomator) FindMemoInLatest(ctx context.Context, marker, memo string) (bool, error) {
	if f.findErr != nil {
		return false, f.findErr
	}
	return f.found, nil
}

func (f *fakeAutomator) Close(ctx context.Context) error { return nil }

type fixture struct {
	orch  *fiat.Orchestrator
	auto  *fakeAutomator
	guard *dupguard.Guard
	hooks *recorder
}

func newFixture(t *testing.T, auto *fakeAutomator) *fixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	clk := clock.NewMockClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	guard := dupguard.NewGuard(24*time.Hour, clk)
	hooks := &recorder{}
	orch := fiat.NewOrchestrator(auto, queue.New("browser", log), guard, hooks, clk, log, "BM-QR")
	return &fixture{orch: orch, auto: auto, guard: guard, hooks: hooks}
}

func wait(t *testing.T, h *queue.Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

func TestGenerateQRSuccess(t *testing.T) {
	fx := newFixture(t, &fakeAutomator{receipt: []byte("png-bytes")})

	memo, handle, err := fx.orch.QueueGenerateQR(context.Background(), "O1", 125.50, "pago pedido 42")
	require.NoError(t, err)
	assert.Equal(t, "PAGO-PEDIDO-42", memo)

	require.NoError(t, wait(t, handle))

	events := fx.hooks.byType(webhook.EventQRGenerated)
	require.Len(t, events, 1)
	assert.Equal(t, "O1", events[0].OrderID)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), events[0].Data["qr_image_base64"])
	assert.Equal(t, "PAGO-PEDIDO-42", events[0].Data["memo"])

	// The order stays reserved after a successful job.
	_, _, err = fx.orch.QueueGenerateQR(context.Background(), "O1", 125.50, "PAGO-PEDIDO-42")
	assert.True(t, errs.Is(err, errs.ErrConflict))
}

func TestGenerateQRValidation(t *testing.T) {
	fx := newFixture(t, &fakeAutomator{receipt: []byte("png")})
	ctx := context.Background()

	_, _, err := fx.orch.QueueGenerateQR(ctx, "", 10, "MEMO-1")
	assert.True(t, errs.Is(err, errs.ErrValidation))

	_, _, err = fx.orch.QueueGenerateQR(ctx, "O1", 0, "MEMO-1")
	assert.True(t, errs.Is(err, errs.ErrValidation))

	_, _, err = fx.orch.QueueGenerateQR(ctx, "O1", 10, "!!")
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestGenerateQRTwoFactorInterrupt(t *testing.T) {
	fx := newFixture(t, &fakeAutomator{loginErr: fiat.ErrTwoFactorRequired})

	_, handle, err := fx.orch.QueueGenerateQR(context.Background(), "O1", 10, "MEMO-1")
	require.NoError(t, err)

	// The interrupt is a clean end, not a failure.
	require.NoError(t, wait(t, handle))

	require.Len(t, fx.hooks.byType(webhook.EventLogin2FARequired), 1)
	assert.Empty(t, fx.hooks.byType(webhook.EventQRGenerated))

	// The reservation is released so the retry after the code arrives is
	// not treated as a duplicate.
	fx.auto.loginErr = nil
	fx.auto.receipt = []byte("png")
	_, handle, err = fx.orch.QueueGenerateQR(context.Background(), "O1", 10, "MEMO-1")
	require.NoError(t, err)
	require.NoError(t, wait(t, handle))
	require.Len(t, fx.hooks.byType(webhook.EventQRGenerated), 1)
}

func TestGenerateQRLoginFailureReleasesGuard(t *testing.T) {
	fx := newFixture(t, &fakeAutomator{loginErr: errs.New("portal down")})

	_, handle, err := fx.orch.QueueGenerateQR(context.Background(), "O1", 10, "MEMO-1")
	require.NoError(t, err)
	require.Error(t, wait(t, handle))

	assert.Empty(t, fx.hooks.byType(webhook.EventQRGenerated))
	assert.Empty(t, fx.hooks.byType(webhook.EventLogin2FARequired))

	fx.auto.loginErr = nil
	fx.auto.receipt = []byte("png")
	_, _, err = fx.orch.QueueGenerateQR(context.Background(), "O1", 10, "MEMO-1")
	assert.NoError(t, err)
}

func TestGenerateQRReceiptFailureReleasesGuard(t *testing.T) {
	fx := newFixture(t, &fakeAutomator{receiptErr: errs.New("form changed")})

	_, handle, err := fx.orch.QueueGenerateQR(context.Background(), "O1", 10, "MEMO-1")
	require.NoError(t, err)
	require.Error(t, wait(t, handle))

	assert.Empty(t, fx.hooks.byType(webhook.EventQRGenerated))

	_, _, err = fx.orch.QueueGenerateQR(context.Background(), "O1", 10, "MEMO-1")
	assert.NoError(t, err)
}

func TestVerifyPaymentReportsResult(t *testing.T) {
	for _, found := range []bool{true, false} {
		fx := newFixture(t, &fakeAutomator{found: found})

		memo, handle, err := fx.orch.QueueVerifyPayment(context.Background(), "O1", "bm-qr-7")
		require.NoError(t, err)
		assert.Equal(t, "BM-QR-7", memo)
		require.NoError(t, wait(t, handle))

		events := fx.hooks.byType(webhook.EventVerificationResult)
		require.Len(t, events, 1)
		assert.Equal(t, found, events[0].Data["success"])
		assert.Equal(t, "BM-QR-7", events[0].Data["memo"])
	}
}

func TestVerifyPaymentTwoFactorInterrupt(t *testing.T) {
	fx := newFixture(t, &fakeAutomator{loginErr: fiat.ErrTwoFactorRequired})

	_, handle, err := fx.orch.QueueVerifyPayment(context.Background(), "O1", "MEMO-1")
	require.NoError(t, err)
	require.NoError(t, wait(t, handle))

	require.Len(t, fx.hooks.byType(webhook.EventLogin2FARequired), 1)
	assert.Empty(t, fx.hooks.byType(webhook.EventVerificationResult))
}

func TestVerifyPaymentDoesNotReserve(t *testing.T) {
	fx := newFixture(t, &fakeAutomator{found: true})
	ctx := context.Background()

	_, handle, err := fx.orch.QueueVerifyPayment(ctx, "O1", "MEMO-1")
	require.NoError(t, err)
	require.NoError(t, wait(t, handle))

	// Verification never holds a reservation; a QR job for the same order
	// is still allowed.
	_, handle, err = fx.orch.QueueGenerateQR(ctx, "O1", 10, "MEMO-1")
	require.NoError(t, err)
	_ = wait(t, handle)
}
