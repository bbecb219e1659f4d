// Package payment owns the lifecycle of a blockchain payment job from
// creation through verification, optional manual confirmation, and
// settlement.
package payment

import (
	"math"
	"strconv"
	"time"

	"github.com/glosapay/glosapay/internal/x402"
)

// Status is a payment job's position in the state machine. Transitions are
// monotonic; COMPLETED, FAILED and EXPIRED are terminal.
type Status string

const (
	StatusPending              Status = "PENDING"
	StatusPaymentRequired      Status = "PAYMENT_REQUIRED"
	StatusPaymentReceived      Status = "PAYMENT_RECEIVED"
	StatusVerifying            Status = "VERIFYING"
	StatusVerified             Status = "VERIFIED"
	StatusAwaitingConfirmation Status = "AWAITING_CONFIRMATION"
	StatusSettling             Status = "SETTLING"
	StatusSettled              Status = "SETTLED"
	StatusCompleted            Status = "COMPLETED"
	StatusFailed               Status = "FAILED"
	StatusExpired              Status = "EXPIRED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Job is a crypto-rail payment job. Instances are owned by the Machine;
// callers only ever see value snapshots.
type Job struct {
	ID           string                   `json:"jobId"`
	OrderID      string                   `json:"orderId"`
	AmountUSD    float64                  `json:"amountUsd"`
	AmountAtomic string                   `json:"amountAtomic"`
	Description  string                   `json:"description,omitempty"`
	Resource     string                   `json:"resource,omitempty"`
	Status       Status                   `json:"status"`
	Requirements x402.PaymentRequirements `json:"paymentRequirements"`
	Payload      *x402.PaymentPayload     `json:"-"`
	Payer        string                   `json:"payer,omitempty"`
	Transaction  string                   `json:"transaction,omitempty"`
	Network      string                   `json:"network,omitempty"`

	RequiresManualConfirmation bool       `json:"requiresManualConfirmation"`
	ConfirmedBy                string     `json:"confirmedBy,omitempty"`
	ConfirmedAt                *time.Time `json:"confirmedAt,omitempty"`

	FailureReason string `json:"failureReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MaxAmountUSD bounds a single job's amount. Keeps the atomic conversion far
// inside int64 range; anything near it is a caller bug, not a payment.
const MaxAmountUSD = 1e9

// AtomicAmount converts a USD amount to 6-decimal atomic units as a string.
// Conversion truncates toward zero, never rounding up, so the service can
// never request more than the caller intended. Callers must bound the amount
// by MaxAmountUSD first.
func AtomicAmount(amountUSD float64) string {
	return strconv.FormatInt(int64(math.Floor(amountUSD*1e6)), 10)
}
