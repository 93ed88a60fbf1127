package workflow

import (
	"fmt"

	"github.com/knots/knots/internal/types"
)

// Kind discriminates the ways a profile definition or transition request
// can be rejected.
type Kind int

const (
	KindTOML Kind = iota
	KindInvalidDefinition
	KindMissingProfileReference
	KindUnknownProfile
	KindUnknownState
	KindInvalidTransition
)

// InvalidWorkflowTransition is the structured detail behind a
// KindInvalidTransition Error.
type InvalidWorkflowTransition struct {
	ProfileID string
	From      types.KnotState
	To        types.KnotState
}

func (e *InvalidWorkflowTransition) Error() string {
	return fmt.Sprintf("invalid state transition in profile %q: %s -> %s", e.ProfileID, e.From, e.To)
}

// Error is the single error type the workflow package returns; Kind
// selects which fields are populated.
type Error struct {
	Kind       Kind
	ProfileID  string
	State      types.KnotState
	Message    string
	Transition *InvalidWorkflowTransition
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.Transition != nil {
		return e.Transition
	}
	return e.Err
}
