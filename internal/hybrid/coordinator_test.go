package hybrid_test

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glosapay/glosapay/internal/clock"
	"github.com/glosapay/glosapay/internal/dupguard"
	"github.com/glosapay/glosapay/internal/errs"
	"github.com/glosapay/glosapay/internal/fiat"
	"github.com/glosapay/glosapay/internal/hybrid"
	"github.com/glosapay/glosapay/internal/payment"
	"github.com/glosapay/glosapay/internal/queue"
	"github.com/glosapay/glosapay/internal/webhook"
	"github.com/glosapay/glosapay/internal/x402"
)

type noopEmitter struct{}

func (noopEmitter) Dispatch(webhook.Event) {}

type stubSigner struct{}

func (stubSigner) Address() string { return "0x209693Bc6afc0C5328bA36FaF03C514EF312287C" }

func (stubSigner) VerifyTypedData(ctx context.Context, address string, domain x402.TypedDataDomain, types map[string][]x402.TypedDataField, primaryType string, message map[string]any, signature []byte) (bool, error) {
	return true, nil
}

func (stubSigner) ReadContract(ctx context.Context, address string, abi []byte, method string, args ...any) (any, error) {
	return false, nil
}

func (stubSigner) WriteContract(ctx context.Context, address string, abi []byte, method string, args ...any) (string, error) {
	return "0xtx1", nil
}

func (stubSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*x402.TransactionReceipt, error) {
	return &x402.TransactionReceipt{Status: x402.TxStatusSuccess, TxHash: txHash}, nil
}

func (stubSigner) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

type stubAutomator struct{}

func (stubAutomator) Login(ctx context.Context) error { return nil }

func (stubAutomator) GenerateReceipt(ctx context.Context, amount float64, memo string) ([]byte, error) {
	return []byte("png"), nil
}

func (stubAutomator) FindMemoInLatest(ctx context.Context, marker, memo string) (bool, error) {
	return true, nil
}

func (stubAutomator) Close(ctx context.Context) error { return nil }

type fixture struct {
	coord *hybrid.Coordinator
	guard *dupguard.Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	clk := clock.NewMockClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	hooks := noopEmitter{}

	machine, err := payment.NewMachine(payment.Config{
		Network: "base-sepolia",
		PayTo:   "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Timeout: 5 * time.Minute,
	}, stubSigner{}, queue.New("wallet", log), hooks, clk, log)
	require.NoError(t, err)

	guard := dupguard.NewGuard(24*time.Hour, clk)
	orch := fiat.NewOrchestrator(stubAutomator{}, queue.New("browser", log), guard, hooks, clk, log, "BM-QR")

	return &fixture{coord: hybrid.NewCoordinator(machine, orch, log), guard: guard}
}

func TestCreateOrderRejectsUnknownMethod(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.coord.CreateOrder(context.Background(), hybrid.Request{
		OrderID: "O1", AmountUSD: 10, Method: "CASH",
	})
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestCreateOrderCryptoOnly(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.coord.CreateOrder(context.Background(), hybrid.Request{
		OrderID:   "O1",
		AmountUSD: 1.00,
		Method:    hybrid.MethodCrypto,
	})
	require.NoError(t, err)

	assert.Nil(t, result.Fiat)
	require.NotNil(t, result.Crypto)
	assert.NotEmpty(t, result.Crypto.JobID)
	require.NotNil(t, result.Crypto.Requirements)
	assert.Equal(t, "1000000", result.Crypto.Requirements.MaxAmountRequired)
}

func TestCreateOrderFiatOnly(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.coord.CreateOrder(context.Background(), hybrid.Request{
		OrderID:   "O1",
		AmountUSD: 125.50,
		Details:   "pago pedido 42",
		Method:    hybrid.MethodFiatQR,
	})
	require.NoError(t, err)

	assert.Nil(t, result.Crypto)
	require.NotNil(t, result.Fiat)
	assert.True(t, result.Fiat.Accepted)
	assert.Equal(t, "PAGO-PEDIDO-42", result.Fiat.NormalizedMemo)
}

func TestCreateOrderSoleRailFailureAborts(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.guard.Reserve("OTHER", "MEMO-1"))

	_, err := fx.coord.CreateOrder(context.Background(), hybrid.Request{
		OrderID:   "O1",
		AmountUSD: 10,
		Details:   "MEMO-1",
		Method:    hybrid.MethodFiatQR,
	})
	assert.True(t, errs.Is(err, errs.ErrConflict))
}

func TestCreateOrderHybridOpensBothRails(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.coord.CreateOrder(context.Background(), hybrid.Request{
		OrderID:   "O1",
		AmountUSD: 50,
		Details:   "MEMO-1",
		Method:    hybrid.MethodHybrid,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Fiat)
	assert.True(t, result.Fiat.Accepted)
	require.NotNil(t, result.Crypto)
	assert.NotEmpty(t, result.Crypto.JobID)
}

func TestCreateOrderHybridSurvivesFiatRejection(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.guard.Reserve("OTHER", "MEMO-1"))

	result, err := fx.coord.CreateOrder(context.Background(), hybrid.Request{
		OrderID:   "O1",
		AmountUSD: 50,
		Details:   "MEMO-1",
		Method:    hybrid.MethodHybrid,
	})
	require.NoError(t, err)

	// The fiat rejection is reported in place; the crypto rail still opens.
	require.NotNil(t, result.Fiat)
	assert.False(t, result.Fiat.Accepted)
	assert.NotEmpty(t, result.Fiat.Error)
	require.NotNil(t, result.Crypto)
	assert.NotEmpty(t, result.Crypto.JobID)
	assert.Empty(t, result.Crypto.Error)
}
