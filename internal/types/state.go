package types

import (
	"fmt"
	"strings"
)

// KnotState is one of the 15 canonical workflow states a knot can occupy.
type KnotState string

const (
	StateReadyForPlanning            KnotState = "ready_for_planning"
	StatePlanning                    KnotState = "planning"
	StateReadyForPlanReview          KnotState = "ready_for_plan_review"
	StatePlanReview                  KnotState = "plan_review"
	StateReadyForImplementation      KnotState = "ready_for_implementation"
	StateImplementation              KnotState = "implementation"
	StateReadyForImplementationReview KnotState = "ready_for_implementation_review"
	StateImplementationReview        KnotState = "implementation_review"
	StateReadyForShipment            KnotState = "ready_for_shipment"
	StateShipment                    KnotState = "shipment"
	StateReadyForShipmentReview      KnotState = "ready_for_shipment_review"
	StateShipmentReview              KnotState = "shipment_review"
	StateShipped                     KnotState = "shipped"
	StateDeferred                    KnotState = "deferred"
	StateAbandoned                   KnotState = "abandoned"
)

// AllStates lists every canonical state, in the order the workflow registry
// enumerates them.
var AllStates = []KnotState{
	StateReadyForPlanning,
	StatePlanning,
	StateReadyForPlanReview,
	StatePlanReview,
	StateReadyForImplementation,
	StateImplementation,
	StateReadyForImplementationReview,
	StateImplementationReview,
	StateReadyForShipment,
	StateShipment,
	StateReadyForShipmentReview,
	StateShipmentReview,
	StateShipped,
	StateDeferred,
	StateAbandoned,
}

// PlanningStates are the states removed from a profile whose planning gate
// is skipped.
var PlanningStates = []KnotState{StateReadyForPlanning, StatePlanning, StateReadyForPlanReview, StatePlanReview}

// ImplementationReviewStates are the states removed from a profile whose
// implementation-review gate is skipped.
var ImplementationReviewStates = []KnotState{StateReadyForImplementationReview, StateImplementationReview}

var terminalStates = map[KnotState]bool{
	StateShipped:   true,
	StateAbandoned: true,
}

// IsTerminal reports whether a knot in this state is considered closed for
// tiering purposes (spec.md §4.7 classify_knot_tier).
func (s KnotState) IsTerminal() bool {
	return terminalStates[s]
}

func (s KnotState) String() string { return string(s) }

// ParseKnotStateError is returned when a string does not name a known state
// or recognized legacy alias.
type ParseKnotStateError struct {
	Value string
}

func (e *ParseKnotStateError) Error() string {
	names := make([]string, len(AllStates))
	for i, s := range AllStates {
		names[i] = string(s)
	}
	return fmt.Sprintf("invalid knot state %q: expected one of %s", e.Value, strings.Join(names, ", "))
}

// legacyStateAliases maps historical/alternate spellings onto the 15
// canonical states (spec.md §4.3's "Legacy state aliases ... normalize to
// the canonical 15-state set").
var legacyStateAliases = map[string]KnotState{
	"idea":                   StateReadyForPlanning,
	"work_item":              StateReadyForImplementation,
	"rejected":               StateReadyForImplementation,
	"refining":               StateReadyForImplementation,
	"implementing":           StateImplementation,
	"implemented":            StateReadyForImplementationReview,
	"reviewing":              StateImplementationReview,
	"approved":               StateReadyForShipment,
	"shipping":               StateShipment,
}

// ParseKnotState validates raw against the canonical state set, accepting
// legacy aliases after trimming, lowercasing, and normalizing hyphens to
// underscores.
func ParseKnotState(raw string) (KnotState, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")

	for _, s := range AllStates {
		if string(s) == normalized {
			return s, nil
		}
	}
	if state, ok := legacyStateAliases[normalized]; ok {
		return state, nil
	}
	return "", &ParseKnotStateError{Value: raw}
}

// InvalidStateTransition reports an attempted transition the workflow
// registry does not permit.
type InvalidStateTransition struct {
	From KnotState
	To   KnotState
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
