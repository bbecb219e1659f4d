// Package hybrid fans one order out into fiat and/or crypto payment jobs and
// reports the best-effort outcome of each rail independently.
package hybrid

import (
	"context"
	"log/slog"

	"github.com/glosapay/glosapay/internal/errs"
	"github.com/glosapay/glosapay/internal/fiat"
	"github.com/glosapay/glosapay/internal/payment"
	"github.com/glosapay/glosapay/internal/x402"
)

// Method selects which rails to open for an order.
type Method string

const (
	MethodFiatQR Method = "FIAT_QR"
	MethodCrypto Method = "X402_CRYPTO"
	MethodHybrid Method = "HYBRID"
)

// Request describes one order to fan out.
type Request struct {
	OrderID                    string
	AmountUSD                  float64
	Details                    string // raw memo for the fiat rail
	Description                string
	Method                     Method
	RequiresManualConfirmation bool
}

// FiatResult is the synchronous part of the fiat rail's outcome; the job
// itself concludes asynchronously through webhooks.
type FiatResult struct {
	Accepted       bool   `json:"accepted"`
	NormalizedMemo string `json:"normalizedMemo,omitempty"`
	Error          string `json:"error,omitempty"`
}

// CryptoResult is the crypto rail's creation outcome.
type CryptoResult struct {
	JobID        string                    `json:"jobId,omitempty"`
	Requirements *x402.PaymentRequirements `json:"paymentRequirements,omitempty"`
	Error        string                    `json:"error,omitempty"`
}

// Result reports each requested rail independently.
type Result struct {
	OrderID string        `json:"orderId"`
	Method  Method        `json:"method"`
	Fiat    *FiatResult   `json:"fiat,omitempty"`
	Crypto  *CryptoResult `json:"crypto,omitempty"`
}

// Coordinator creates jobs on both rails. It holds no job state of its own.
type Coordinator struct {
	payments *payment.Machine
	fiat     *fiat.Orchestrator
	log      *slog.Logger
}

func NewCoordinator(payments *payment.Machine, fiatOrch *fiat.Orchestrator, log *slog.Logger) *Coordinator {
	return &Coordinator{
		payments: payments,
		fiat:     fiatOrch,
		log:      log.With("component", "hybrid"),
	}
}

// CreateOrder opens the requested rails for one order. A rail failure aborts
// the whole request only when that rail was the sole requested method; under
// HYBRID each failure is swallowed into a partial result.
func (c *Coordinator) CreateOrder(ctx context.Context, req Request) (*Result, error) {
	switch req.Method {
	case MethodFiatQR, MethodCrypto, MethodHybrid:
	default:
		return nil, errs.Mark(errs.Newf("unknown payment method: %s", req.Method), errs.ErrValidation)
	}

	result := &Result{OrderID: req.OrderID, Method: req.Method}
	sole := req.Method != MethodHybrid

	if req.Method == MethodFiatQR || req.Method == MethodHybrid {
		memo, _, err := c.fiat.QueueGenerateQR(ctx, req.OrderID, req.AmountUSD, req.Details)
		if err != nil {
			if sole {
				return nil, err
			}
			c.log.Warn("fiat rail rejected under hybrid order", "orderId", req.OrderID, "error", err)
			result.Fiat = &FiatResult{Error: err.Error()}
		} else {
			result.Fiat = &FiatResult{Accepted: true, NormalizedMemo: memo}
		}
	}

	if req.Method == MethodCrypto || req.Method == MethodHybrid {
		job, err := c.payments.CreatePaymentJob(ctx, payment.CreatePaymentJobParams{
			OrderID:                    req.OrderID,
			AmountUSD:                  req.AmountUSD,
			Description:                req.Description,
			RequiresManualConfirmation: req.RequiresManualConfirmation,
		})
		if err != nil {
			if sole {
				return nil, err
			}
			c.log.Warn("crypto rail rejected under hybrid order", "orderId", req.OrderID, "error", err)
			result.Crypto = &CryptoResult{Error: err.Error()}
		} else {
			requirements := job.Requirements
			result.Crypto = &CryptoResult{JobID: job.ID, Requirements: &requirements}
		}
	}

	return result, nil
}
