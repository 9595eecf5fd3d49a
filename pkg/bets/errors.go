package bets

import (
	"errors"
	"fmt"

	"github.com/statedge/betengine/pkg/roster"
)

// ErrParse is matched by errors.Is for any field-level parse failure.
var ErrParse = errors.New("bet parse failure")

// ParseError reports a single field that failed local validation of the
// oracle's output. The field and reason are surfaced to the user so they can
// re-phrase the pick.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure on %s: %s", e.Field, e.Reason)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// RejectionError wraps a resolver outcome (not found, ineligible) or a
// game-binding failure into the caller-facing rejection. Suggestions are
// passed through from the resolver verbatim.
type RejectionError struct {
	Reason      string
	Suggestions []roster.Entry
	Cause       error
}

func (e *RejectionError) Error() string {
	return "bet rejected: " + e.Reason
}

func (e *RejectionError) Unwrap() error { return e.Cause }
