// Package dupguard indexes in-flight and recent QR jobs so the same order or
// memo cannot be queued twice within the guard window.
package dupguard

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/glosapay/glosapay/internal/clock"
	"github.com/glosapay/glosapay/internal/errs"
)

const (
	memoMinLen = 3
	memoMaxLen = 50
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	invalidRe    = regexp.MustCompile(`[^A-Z0-9_-]`)
)

// NormalizeMemo canonicalizes a free-text memo: uppercase, whitespace runs
// collapsed to single hyphens, everything outside [A-Z0-9_-] stripped. The
// result must be 3-50 characters or a validation error is returned.
func NormalizeMemo(raw string) (string, error) {
	memo := strings.ToUpper(strings.TrimSpace(raw))
	memo = whitespaceRe.ReplaceAllString(memo, "-")
	memo = invalidRe.ReplaceAllString(memo, "")
	if len(memo) < memoMinLen || len(memo) > memoMaxLen {
		return "", errs.Mark(
			errs.Newf("normalized memo %q must be %d-%d characters", memo, memoMinLen, memoMaxLen),
			errs.ErrValidation,
		)
	}
	return memo, nil
}

type entry struct {
	orderID   string
	memo      string
	expiresAt time.Time
}

// Guard is an in-memory TTL index keyed by order id and normalized memo.
// Expired entries are evicted lazily on the next call; there is no
// background sweeper.
type Guard struct {
	mu      sync.Mutex
	byOrder map[string]*entry
	byMemo  map[string]*entry
	ttl     time.Duration
	clk     clock.Clock
}

func NewGuard(ttl time.Duration, clk clock.Clock) *Guard {
	return &Guard{
		byOrder: make(map[string]*entry),
		byMemo:  make(map[string]*entry),
		ttl:     ttl,
		clk:     clk,
	}
}

// Reserve records the order/memo pair, or returns a conflict error if an
// unexpired entry already holds either key.
func (g *Guard) Reserve(orderID, normalizedMemo string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cleanupExpiredLocked()

	if _, exists := g.byOrder[orderID]; exists {
		return errs.Mark(
			errs.Newf("order %s already has a QR job in the guard window", orderID),
			errs.ErrConflict,
		)
	}
	if _, exists := g.byMemo[normalizedMemo]; exists {
		return errs.Mark(
			errs.Newf("memo %s already has a QR job in the guard window", normalizedMemo),
			errs.ErrConflict,
		)
	}

	e := &entry{
		orderID:   orderID,
		memo:      normalizedMemo,
		expiresAt: g.clk.Now().Add(g.ttl),
	}
	g.byOrder[orderID] = e
	g.byMemo[normalizedMemo] = e
	return nil
}

// Release frees the entry for an order before its TTL elapses. Used when a
// job ends without producing a QR, so a retry is not blocked for 24 hours.
func (g *Guard) Release(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, exists := g.byOrder[orderID]
	if !exists {
		return
	}
	delete(g.byOrder, e.orderID)
	delete(g.byMemo, e.memo)
}

func (g *Guard) cleanupExpiredLocked() {
	now := g.clk.Now()
	for orderID, e := range g.byOrder {
		if !now.Before(e.expiresAt) {
			delete(g.byOrder, orderID)
			delete(g.byMemo, e.memo)
		}
	}
}
