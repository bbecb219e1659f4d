// Package errs defines the error taxonomy shared by the payment rails.
//
// Errors are classified by marking them with one of the sentinel errors
// below; callers branch with errs.Is and the HTTP layer maps sentinels to
// status codes. The two-factor interrupt is deliberately absent from this
// taxonomy: it is a result variant on the fiat rail, not an error.
package errs

import (
	cr "github.com/cockroachdb/errors"
)

// Sentinel marks. Never returned directly; attach them with Mark.
var (
	ErrValidation   = cr.New("validation error")
	ErrConflict     = cr.New("conflict")
	ErrNotFound     = cr.New("not found")
	ErrUnauthorized = cr.New("unauthorized")
	ErrExpired      = cr.New("expired")
	ErrVerification = cr.New("verification failed")
	ErrSettlement   = cr.New("settlement failed")
)

func New(msg string) error {
	return cr.New(msg)
}

func Newf(format string, args ...any) error {
	return cr.Newf(format, args...)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

func Mark(err error, mark error) error {
	if err == nil {
		return mark
	}
	return cr.Mark(err, mark)
}

func Is(err, reference error) bool {
	return cr.Is(err, reference)
}

// VerificationError carries the rail-specific reason code for a rejected
// payment authorization. Callers observe the exact reason string, so the
// codes are part of the external contract.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "payment verification failed: " + e.Reason
}

// Verification builds a VerificationError marked with ErrVerification.
func Verification(reason string) error {
	return cr.Mark(&VerificationError{Reason: reason}, ErrVerification)
}

// SettlementError carries the reason code for a failed on-chain settlement.
type SettlementError struct {
	Reason string
}

func (e *SettlementError) Error() string {
	return "payment settlement failed: " + e.Reason
}

// Settlement builds a SettlementError marked with ErrSettlement.
func Settlement(reason string) error {
	return cr.Mark(&SettlementError{Reason: reason}, ErrSettlement)
}

// ReasonOf extracts the verification or settlement reason code, if any.
func ReasonOf(err error) string {
	var ve *VerificationError
	if cr.As(err, &ve) {
		return ve.Reason
	}
	var se *SettlementError
	if cr.As(err, &se) {
		return se.Reason
	}
	return ""
}
