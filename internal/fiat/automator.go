// Package fiat drives the browser-automation collaborator through session
// establishment, QR generation and payment verification on the bank portal.
package fiat

import (
	"context"

	"github.com/glosapay/glosapay/internal/errs"
)

// ErrTwoFactorRequired is how an Automator signals that the portal asked for
// a one-time code it does not have. The orchestrator translates it into the
// TwoFactorRequired outcome variant; it must never surface as a generic
// failure.
var ErrTwoFactorRequired = errs.New("two-factor code required")

// Automator is the browser-automation collaborator. The portal has no API;
// everything below is implemented by driving a real browser session. The
// session is stateful, which is why every call is funneled through the
// browser queue.
type Automator interface {
	// Login establishes an authenticated portal session. Returns an error
	// marked with ErrTwoFactorRequired when the portal prompts for a
	// one-time code and none is available.
	Login(ctx context.Context) error

	// GenerateReceipt produces a PNG receipt image for the amount and memo.
	GenerateReceipt(ctx context.Context, amount float64, memo string) ([]byte, error)

	// FindMemoInLatest reports whether the most recent transaction record
	// contains both the marker token and the memo.
	FindMemoInLatest(ctx context.Context, marker, memo string) (bool, error)

	// Close releases the browser session.
	Close(ctx context.Context) error
}
