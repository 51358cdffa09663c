package settlement

import (
	"strings"

	"github.com/noah-isme/backend-galeri/internal/cart"
	"github.com/noah-isme/backend-galeri/internal/purchase"
)

// State is a node of the settlement state machine.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateVerified   State = "VERIFIED"
	StateDeduped    State = "DEDUPED"
	StateProcessing State = "PROCESSING"
	StateCommitted  State = "COMMITTED"
	StateRejected   State = "REJECTED"
	StateSkipped    State = "SKIPPED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected || s == StateSkipped
}

// Outcome is what the transport boundary acts on.
type Outcome string

const (
	OutcomeCommitted Outcome = "COMMITTED"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeSkipped   Outcome = "SKIPPED"
	// OutcomeRetryable means nothing was written and the provider should redeliver.
	OutcomeRetryable Outcome = "RETRYABLE_FAILURE"
)

// Result describes how one event was settled.
type Result struct {
	State        State
	Outcome      Outcome
	ExternalID   string
	Provider     string
	Created      []purchase.Record
	SkippedItems []cart.LineItem
	Trail        []State
	Err          error
}

// Retryable reports whether the provider should redeliver the event.
func (r Result) Retryable() bool { return r.Outcome == OutcomeRetryable }

// Success reports whether the event is handled from the provider's point of view.
func (r Result) Success() bool {
	return r.Outcome == OutcomeCommitted || r.Outcome == OutcomeSkipped
}

// TrailString renders the visited states, e.g. "RECEIVED>VERIFIED>SKIPPED".
func (r Result) TrailString() string {
	parts := make([]string, 0, len(r.Trail))
	for _, s := range r.Trail {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ">")
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trail = append(r.Trail, s)
}

func (r *Result) finish(s State, o Outcome) {
	r.enter(s)
	r.Outcome = o
}

func (r *Result) reject(err error) {
	r.finish(StateRejected, OutcomeRejected)
	r.Err = err
}

// retry returns the event to RECEIVED; the transaction left no writes behind.
func (r *Result) retry(err error) {
	r.State = StateReceived
	r.Outcome = OutcomeRetryable
	r.Err = err
}
