// Package webhook delivers typed event payloads to the single configured
// endpoint. Delivery is at-most-once: a failure is logged and dropped, never
// retried or re-queued.
package webhook

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/glosapay/glosapay/internal/clock"
)

// EventType identifies a webhook event. The set is closed per rail.
type EventType string

const (
	// Crypto rail.
	EventPaymentRequired  EventType = "X402_PAYMENT_REQUIRED"
	EventPaymentVerified  EventType = "X402_PAYMENT_VERIFIED"
	EventPaymentSettled   EventType = "X402_PAYMENT_SETTLED"
	EventPaymentConfirmed EventType = "X402_PAYMENT_CONFIRMED"
	EventPaymentFailed    EventType = "X402_PAYMENT_FAILED"
	EventPaymentExpired   EventType = "X402_PAYMENT_EXPIRED"

	// Fiat rail.
	EventQRGenerated        EventType = "QR_GENERATED"
	EventVerificationResult EventType = "VERIFICATION_RESULT"
	EventLogin2FARequired   EventType = "LOGIN_2FA_REQUIRED"
)

// Event is the wire shape posted to the webhook endpoint.
type Event struct {
	Type      EventType      `json:"type"`
	JobID     string         `json:"jobId,omitempty"`
	OrderID   string         `json:"orderId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Emitter is what the orchestrators depend on; tests substitute a recorder.
type Emitter interface {
	Dispatch(event Event)
}

// Dispatcher posts events to one configured endpoint, fire-and-forget.
type Dispatcher struct {
	url    string
	client *http.Client
	clk    clock.Clock
	log    *slog.Logger
}

func NewDispatcher(url string, timeout time.Duration, clk clock.Clock, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		clk:    clk,
		log:    log.With("component", "webhook"),
	}
}

// Dispatch stamps and posts the event on a fresh goroutine so delivery never
// blocks a state machine. When no endpoint is configured the event is only
// logged.
func (d *Dispatcher) Dispatch(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = d.clk.Now().UTC().Format(time.RFC3339)
	}

	if d.url == "" {
		d.log.Debug("webhook endpoint not configured, dropping event", "type", event.Type, "jobId", event.JobID)
		return
	}

	go d.send(event)
}

func (d *Dispatcher) send(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		d.log.Warn("failed to encode webhook event", "type", event.Type, "error", err)
		return
	}

	resp, err := d.client.Post(d.url, "application/json", bytes.NewReader(body))
	if err != nil {
		d.log.Warn("webhook delivery failed", "type", event.Type, "jobId", event.JobID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.log.Warn("webhook endpoint rejected event", "type", event.Type, "jobId", event.JobID, "status", resp.StatusCode)
		return
	}

	d.log.Debug("webhook delivered", "type", event.Type, "jobId", event.JobID)
}

var _ Emitter = (*Dispatcher)(nil)
