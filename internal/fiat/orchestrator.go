package fiat

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/glosapay/glosapay/internal/clock"
	"github.com/glosapay/glosapay/internal/dupguard"
	"github.com/glosapay/glosapay/internal/errs"
	"github.com/glosapay/glosapay/internal/queue"
	"github.com/glosapay/glosapay/internal/webhook"
)

// Orchestrator wraps the Automator behind the two fiat operations. Every
// job runs on the browser queue, so no two automation jobs ever share the
// portal session concurrently.
type Orchestrator struct {
	auto    Automator
	browser *queue.Queue
	guard   *dupguard.Guard
	hooks   webhook.Emitter
	clk     clock.Clock
	log     *slog.Logger
	marker  string
}

func NewOrchestrator(
	auto Automator,
	browser *queue.Queue,
	guard *dupguard.Guard,
	hooks webhook.Emitter,
	clk clock.Clock,
	log *slog.Logger,
	marker string,
) *Orchestrator {
	return &Orchestrator{
		auto:    auto,
		browser: browser,
		guard:   guard,
		hooks:   hooks,
		clk:     clk,
		log:     log.With("component", "fiat"),
		marker:  marker,
	}
}

// QueueGenerateQR validates the request, reserves the order/memo pair in the
// duplicate guard, and enqueues the QR job. Validation and conflict errors
// surface synchronously; the job itself runs asynchronously on the browser
// queue and reports through webhooks.
func (o *Orchestrator) QueueGenerateQR(ctx context.Context, orderID string, amount float64, rawMemo string) (string, *queue.Handle, error) {
	if orderID == "" {
		return "", nil, errs.Mark(errs.New("orderId is required"), errs.ErrValidation)
	}
	if amount <= 0 {
		return "", nil, errs.Mark(errs.Newf("amount must be positive, got %v", amount), errs.ErrValidation)
	}

	memo, err := dupguard.NormalizeMemo(rawMemo)
	if err != nil {
		return "", nil, err
	}

	if err := o.guard.Reserve(orderID, memo); err != nil {
		return "", nil, err
	}

	handle := o.browser.Enqueue(ctx, func(ctx context.Context) error {
		out := o.generateQR(ctx, orderID, amount, memo)
		return out.Err
	})
	return memo, handle, nil
}

// QueueVerifyPayment normalizes the memo and enqueues the verification job.
func (o *Orchestrator) QueueVerifyPayment(ctx context.Context, orderID, rawMemo string) (string, *queue.Handle, error) {
	if orderID == "" {
		return "", nil, errs.Mark(errs.New("orderId is required"), errs.ErrValidation)
	}

	memo, err := dupguard.NormalizeMemo(rawMemo)
	if err != nil {
		return "", nil, err
	}

	handle := o.browser.Enqueue(ctx, func(ctx context.Context) error {
		out := o.verifyPayment(ctx, orderID, memo)
		return out.Err
	})
	return memo, handle, nil
}

// generateQR runs inside a browser-queue task.
func (o *Orchestrator) generateQR(ctx context.Context, orderID string, amount float64, memo string) Outcome {
	if out := o.login(ctx, orderID); out.Kind != OutcomeOK {
		// The guard entry is freed so a retry after the interrupt (or a
		// fixed automation) is not treated as a duplicate for 24 hours.
		o.guard.Release(orderID)
		return out
	}

	img, err := o.auto.GenerateReceipt(ctx, amount, memo)
	if err != nil {
		o.guard.Release(orderID)
		o.log.Error("receipt generation failed", "orderId", orderID, "memo", memo, "error", err)
		return failed(errs.Wrap(err, "receipt generation failed"))
	}

	o.log.Info("qr generated", "orderId", orderID, "memo", memo, "bytes", len(img))
	o.hooks.Dispatch(webhook.Event{
		Type:    webhook.EventQRGenerated,
		OrderID: orderID,
		Data: map[string]any{
			"qr_image_base64": base64.StdEncoding.EncodeToString(img),
			"memo":            memo,
		},
	})

	return Outcome{Kind: OutcomeOK, QRImage: img}
}

// verifyPayment runs inside a browser-queue task.
func (o *Orchestrator) verifyPayment(ctx context.Context, orderID, memo string) Outcome {
	if out := o.login(ctx, orderID); out.Kind != OutcomeOK {
		return out
	}

	found, err := o.auto.FindMemoInLatest(ctx, o.marker, memo)
	if err != nil {
		o.log.Error("payment verification failed", "orderId", orderID, "memo", memo, "error", err)
		return failed(errs.Wrap(err, "payment verification failed"))
	}

	o.log.Info("payment verification result", "orderId", orderID, "memo", memo, "success", found)
	o.hooks.Dispatch(webhook.Event{
		Type:    webhook.EventVerificationResult,
		OrderID: orderID,
		Data: map[string]any{
			"success": found,
			"memo":    memo,
		},
	})

	return Outcome{Kind: OutcomeOK, Verified: found}
}

// login establishes the portal session, translating the two-factor prompt
// into its outcome variant. The interrupt ends the job cleanly: an interrupt
// webhook, an info-level log line, and no error.
func (o *Orchestrator) login(ctx context.Context, orderID string) Outcome {
	err := o.auto.Login(ctx)
	if err == nil {
		return ok()
	}

	if errs.Is(err, ErrTwoFactorRequired) {
		o.log.Info("login interrupted, waiting for two-factor code", "orderId", orderID)
		o.hooks.Dispatch(webhook.Event{
			Type:    webhook.EventLogin2FARequired,
			OrderID: orderID,
			Data: map[string]any{
				"message":   "portal login requires a one-time code; supply it and queue the job again",
				"timestamp": o.clk.Now().UTC().Format(time.RFC3339),
			},
		})
		return twoFactorRequired()
	}

	o.log.Error("portal login failed", "orderId", orderID, "error", err)
	return failed(errs.Wrap(err, "portal login failed"))
}
