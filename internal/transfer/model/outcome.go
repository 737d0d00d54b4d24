package model

import "time"

type OutcomeKind string

const (
	OutcomeCommitted  OutcomeKind = "COMMITTED"
	OutcomeCancelled  OutcomeKind = "CANCELLED"
	OutcomeExpired    OutcomeKind = "EXPIRED"
	OutcomeSuperseded OutcomeKind = "SUPERSEDED"
	// OutcomeOverridden is a privileged commit that never went through consent.
	OutcomeOverridden OutcomeKind = "OVERRIDDEN"
)

// Outcome is terminal: no registry entry survives once one is reached.
type Outcome struct {
	Kind    OutcomeKind
	Request Request
	// By is whoever caused the outcome: the responder, or the privileged
	// actor for an override. Zero for expiry and supersession.
	By      Actor
	At      time.Time
	Applied int
	Skipped int
}
