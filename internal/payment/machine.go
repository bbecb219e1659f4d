package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glosapay/glosapay/internal/clock"
	"github.com/glosapay/glosapay/internal/errs"
	"github.com/glosapay/glosapay/internal/queue"
	"github.com/glosapay/glosapay/internal/webhook"
	"github.com/glosapay/glosapay/internal/x402"
)

// Config holds the static payment-requirement parameters.
type Config struct {
	// Network is the v1 network name offered to clients.
	Network string
	// PayTo is the recipient address for every payment.
	PayTo string
	// Timeout bounds the window between job creation and payload submission.
	Timeout time.Duration
}

// CreatePaymentJobParams is the input for CreatePaymentJob.
type CreatePaymentJobParams struct {
	OrderID                    string
	AmountUSD                  float64
	Description                string
	Resource                   string
	RequiresManualConfirmation bool
}

// Machine is the crypto payment state machine. Jobs live in memory for the
// process lifetime; settlement is serialized on the wallet queue so at most
// one authorized transfer is in flight at a time.
type Machine struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	byOrder map[string]string // order id -> most recent job id

	cfg    Config
	asset  x402.AssetInfo
	fac    *x402.ExactEvmFacilitator
	wallet *queue.Queue
	hooks  webhook.Emitter
	clk    clock.Clock
	log    *slog.Logger
}

// NewMachine builds the state machine. The network must be one the protocol
// layer knows, or an error is returned at startup rather than per-job.
func NewMachine(
	cfg Config,
	signer x402.FacilitatorSigner,
	wallet *queue.Queue,
	hooks webhook.Emitter,
	clk clock.Clock,
	log *slog.Logger,
) (*Machine, error) {
	network, ok := x402.GetNetworkConfig(cfg.Network)
	if !ok {
		return nil, errs.Newf("unknown payment network: %s", cfg.Network)
	}
	return &Machine{
		jobs:    make(map[string]*Job),
		byOrder: make(map[string]string),
		cfg:     cfg,
		asset:   network.DefaultAsset,
		fac:     x402.NewExactEvmFacilitator(signer, clk),
		wallet:  wallet,
		hooks:   hooks,
		clk:     clk,
		log:     log.With("component", "payment"),
	}, nil
}

// CreatePaymentJob allocates a job, builds its payment requirements and
// emits the PAYMENT_REQUIRED event. The returned snapshot carries the
// requirements for the HTTP 402 payload.
func (m *Machine) CreatePaymentJob(ctx context.Context, params CreatePaymentJobParams) (Job, error) {
	if params.OrderID == "" {
		return Job{}, errs.Mark(errs.New("orderId is required"), errs.ErrValidation)
	}
	if params.AmountUSD <= 0 {
		return Job{}, errs.Mark(errs.Newf("amountUsd must be positive, got %v", params.AmountUSD), errs.ErrValidation)
	}
	if params.AmountUSD > MaxAmountUSD {
		return Job{}, errs.Mark(errs.Newf("amountUsd must not exceed %v, got %v", float64(MaxAmountUSD), params.AmountUSD), errs.ErrValidation)
	}

	now := m.clk.Now()
	atomic := AtomicAmount(params.AmountUSD)

	job := &Job{
		ID:           uuid.NewString(),
		OrderID:      params.OrderID,
		AmountUSD:    params.AmountUSD,
		AmountAtomic: atomic,
		Description:  params.Description,
		Resource:     params.Resource,
		Status:       StatusPaymentRequired,
		Requirements: x402.PaymentRequirements{
			Scheme:            x402.SchemeExact,
			Network:           m.cfg.Network,
			MaxAmountRequired: atomic,
			Resource:          params.Resource,
			Description:       params.Description,
			PayTo:             m.cfg.PayTo,
			MaxTimeoutSeconds: int(m.cfg.Timeout.Seconds()),
			Asset:             m.asset.Address,
			Extra: map[string]any{
				"name":    m.asset.Name,
				"version": m.asset.Version,
			},
		},
		RequiresManualConfirmation: params.RequiresManualConfirmation,
		CreatedAt:                  now,
		UpdatedAt:                  now,
		ExpiresAt:                  now.Add(m.cfg.Timeout),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.byOrder[job.OrderID] = job.ID
	snap := *job
	m.mu.Unlock()

	m.log.Info("payment job created",
		"jobId", snap.ID, "orderId", snap.OrderID,
		"amountUsd", snap.AmountUSD, "amountAtomic", snap.AmountAtomic,
		"manualConfirmation", snap.RequiresManualConfirmation)

	m.emit(webhook.EventPaymentRequired, snap, map[string]any{
		"paymentRequirements": snap.Requirements,
		"amountUsd":           snap.AmountUSD,
		"expiresAt":           snap.ExpiresAt.UTC().Format(time.RFC3339),
	})

	return snap, nil
}

// ProcessPayment accepts a base64-encoded payment payload for a job, runs
// verification, and unless the job requires manual confirmation settles it
// within the same call.
func (m *Machine) ProcessPayment(ctx context.Context, jobID, encodedPayload string) (Job, error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return Job{}, errs.Mark(errs.Newf("payment job %s not found", jobID), errs.ErrNotFound)
	}

	if expired, snap := m.expireLocked(job); expired {
		m.mu.Unlock()
		m.emit(webhook.EventPaymentExpired, snap, nil)
		return snap, errs.Mark(errs.Newf("payment job %s expired", jobID), errs.ErrExpired)
	}

	if job.Status != StatusPaymentRequired {
		snap := *job
		m.mu.Unlock()
		return snap, errs.Mark(
			errs.Newf("payment job %s already received a payload (status %s)", jobID, snap.Status),
			errs.ErrConflict,
		)
	}
	// Claim the job under the same lock as the status check: a concurrent
	// submission observes PAYMENT_RECEIVED and conflicts instead of racing
	// through verification and settling twice.
	job.Status = StatusPaymentReceived
	job.UpdatedAt = m.clk.Now()
	requirements := job.Requirements
	m.mu.Unlock()

	// A payload that does not even decode rolls the claim back; the client
	// may resubmit a corrected one within the window.
	payload, err := x402.DecodePaymentPayload(encodedPayload)
	if err != nil {
		snap := m.update(jobID, StatusPaymentRequired, nil)
		return snap, errs.Mark(errs.Wrap(err, "invalid payment payload"), errs.ErrValidation)
	}

	m.update(jobID, StatusVerifying, func(j *Job) { j.Payload = payload })

	verifyResp, err := m.fac.Verify(ctx, payload, requirements)
	if err != nil {
		reason := fmt.Sprintf("verification_error: %v", err)
		snap := m.fail(jobID, reason)
		return snap, errs.Verification(reason)
	}
	if !verifyResp.IsValid {
		snap := m.fail(jobID, verifyResp.InvalidReason)
		return snap, errs.Verification(verifyResp.InvalidReason)
	}

	snap := m.update(jobID, StatusVerified, func(j *Job) { j.Payer = verifyResp.Payer })
	m.log.Info("payment verified", "jobId", jobID, "payer", verifyResp.Payer)
	m.emit(webhook.EventPaymentVerified, snap, map[string]any{
		"payer": verifyResp.Payer,
	})

	if snap.RequiresManualConfirmation {
		snap = m.update(jobID, StatusAwaitingConfirmation, nil)
		m.log.Info("payment awaiting manual confirmation", "jobId", jobID)
		return snap, nil
	}

	return m.settle(ctx, jobID, false)
}

// ConfirmPayment releases a job held at the manual-confirmation gate and
// settles it. The caller's authorization has already been checked upstream.
func (m *Machine) ConfirmPayment(ctx context.Context, jobID, confirmedBy string) (Job, error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return Job{}, errs.Mark(errs.Newf("payment job %s not found", jobID), errs.ErrNotFound)
	}
	if job.Status != StatusAwaitingConfirmation {
		snap := *job
		m.mu.Unlock()
		return snap, errs.Mark(
			errs.Newf("payment job %s is not awaiting confirmation (status %s)", jobID, snap.Status),
			errs.ErrConflict,
		)
	}
	now := m.clk.Now()
	job.ConfirmedBy = confirmedBy
	job.ConfirmedAt = &now
	// Moving to SETTLING under the same lock as the status check makes a
	// second concurrent confirm conflict rather than settle again.
	job.Status = StatusSettling
	job.UpdatedAt = now
	m.mu.Unlock()

	m.log.Info("payment confirmed", "jobId", jobID, "confirmedBy", confirmedBy)
	return m.settle(ctx, jobID, true)
}

// GetJob returns a snapshot of a job by id. Reading a job past its payment
// window expires it lazily; there is no timer.
func (m *Machine) GetJob(jobID string) (Job, bool) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return Job{}, false
	}
	if expired, snap := m.expireLocked(job); expired {
		m.mu.Unlock()
		m.emit(webhook.EventPaymentExpired, snap, nil)
		return snap, true
	}
	snap := *job
	m.mu.Unlock()
	return snap, true
}

// GetJobByOrderID returns the most recent job created for an order.
func (m *Machine) GetJobByOrderID(orderID string) (Job, bool) {
	m.mu.Lock()
	jobID, ok := m.byOrder[orderID]
	m.mu.Unlock()
	if !ok {
		return Job{}, false
	}
	return m.GetJob(jobID)
}

// settle runs the settlement step on the wallet queue, so no two settlements
// ever race for the facilitator key. The payload is re-verified inside
// Settle as a defense against state drift.
func (m *Machine) settle(ctx context.Context, jobID string, manual bool) (Job, error) {
	m.mu.Lock()
	job := m.jobs[jobID]
	payload := job.Payload
	requirements := job.Requirements
	job.Status = StatusSettling
	job.UpdatedAt = m.clk.Now()
	m.mu.Unlock()

	var settleResp x402.SettleResponse
	handle := m.wallet.Enqueue(ctx, func(ctx context.Context) error {
		resp, err := m.fac.Settle(ctx, payload, requirements)
		if err != nil {
			return err
		}
		settleResp = resp
		return nil
	})
	if err := handle.Wait(ctx); err != nil {
		reason := fmt.Sprintf("settlement_error: %v", err)
		snap := m.fail(jobID, reason)
		return snap, errs.Settlement(reason)
	}

	if !settleResp.Success {
		snap := m.fail(jobID, settleResp.ErrorReason)
		return snap, errs.Settlement(settleResp.ErrorReason)
	}

	m.update(jobID, StatusSettled, func(j *Job) {
		j.Transaction = settleResp.Transaction
		j.Network = settleResp.Network
	})
	snap := m.update(jobID, StatusCompleted, nil)

	m.log.Info("payment settled",
		"jobId", jobID, "transaction", snap.Transaction, "payer", snap.Payer)

	m.emit(webhook.EventPaymentSettled, snap, map[string]any{
		"transaction": snap.Transaction,
		"network":     snap.Network,
		"payer":       snap.Payer,
	})
	if manual {
		m.emit(webhook.EventPaymentConfirmed, snap, map[string]any{
			"confirmedBy": snap.ConfirmedBy,
			"transaction": snap.Transaction,
		})
	}

	return snap, nil
}

// fail moves a job to FAILED with the given reason and emits the failure
// event. Returns the resulting snapshot.
func (m *Machine) fail(jobID, reason string) Job {
	snap := m.update(jobID, StatusFailed, func(j *Job) { j.FailureReason = reason })
	m.log.Warn("payment job failed", "jobId", jobID, "reason", reason)
	m.emit(webhook.EventPaymentFailed, snap, map[string]any{
		"reason": reason,
	})
	return snap
}

// expireLocked transitions a job to EXPIRED when it is still waiting for a
// payload past its window. Must be called with the lock held; the caller
// emits the event after unlocking.
func (m *Machine) expireLocked(job *Job) (bool, Job) {
	if job.Status != StatusPaymentRequired {
		return false, Job{}
	}
	if m.clk.Now().Before(job.ExpiresAt) {
		return false, Job{}
	}
	job.Status = StatusExpired
	job.UpdatedAt = m.clk.Now()
	m.log.Info("payment job expired", "jobId", job.ID, "orderId", job.OrderID)
	return true, *job
}

// update applies a status transition plus optional field mutation under the
// lock and returns the resulting snapshot.
func (m *Machine) update(jobID string, status Status, mutate func(*Job)) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	if mutate != nil {
		mutate(job)
	}
	job.Status = status
	job.UpdatedAt = m.clk.Now()
	return *job
}

func (m *Machine) emit(eventType webhook.EventType, job Job, data map[string]any) {
	m.hooks.Dispatch(webhook.Event{
		Type:    eventType,
		JobID:   job.ID,
		OrderID: job.OrderID,
		Data:    data,
	})
}
