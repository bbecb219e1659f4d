package fiat

// OutcomeKind discriminates the result of a fiat automation job. The
// two-factor interrupt is a first-class variant, not an error: callers are
// forced to branch on it instead of pattern-matching error strings.
type OutcomeKind int

const (
	// OutcomeOK means the job produced its result.
	OutcomeOK OutcomeKind = iota
	// OutcomeTwoFactorRequired means login was interrupted by the portal's
	// one-time-code prompt. The job ended cleanly; a fresh job should be
	// queued once a code has been supplied.
	OutcomeTwoFactorRequired
	// OutcomeFailed means the automation itself failed.
	OutcomeFailed
)

// Outcome is the tagged result of a fiat automation job.
type Outcome struct {
	Kind OutcomeKind

	// QRImage is the PNG receipt, set on OutcomeOK of a QR job.
	QRImage []byte

	// Verified is the verification result, set on OutcomeOK of a
	// verification job.
	Verified bool

	// Err is set on OutcomeFailed.
	Err error
}

func ok() Outcome {
	return Outcome{Kind: OutcomeOK}
}

func twoFactorRequired() Outcome {
	return Outcome{Kind: OutcomeTwoFactorRequired}
}

func failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}
