// Package workflow implements the profile registry and transition admission
// control described in spec.md §4.3: a TOML-configured set of named
// workflows, each owning its own state subset and transition table, rather
// than a single hardcoded state machine.
package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/knots/knots/internal/types"
)

const wildcardState = "*"

// GateMode controls whether a profile's planning or implementation-review
// phase is mandatory, optional, or removed from the profile's state set
// entirely.
type GateMode string

const (
	GateRequired GateMode = "required"
	GateOptional GateMode = "optional"
	GateSkipped  GateMode = "skipped"
)

// OutputMode names where a profile's shipment step publishes to.
type OutputMode string

const (
	OutputLocal      OutputMode = "local"
	OutputRemote     OutputMode = "remote"
	OutputPR         OutputMode = "pr"
	OutputRemoteMain OutputMode = "remote_main"
)

// OwnerKind distinguishes a human-owned workflow step from an agent-owned
// one.
type OwnerKind string

const (
	OwnerHuman OwnerKind = "human"
	OwnerAgent OwnerKind = "agent"
)

// StepOwner names who is responsible for a single workflow step.
type StepOwner struct {
	Kind         OwnerKind `toml:"kind"`
	AgentName    string    `toml:"agent_name"`
	AgentModel   string    `toml:"agent_model"`
	AgentVersion string    `toml:"agent_version"`
}

// ProfileOwners assigns an owner to each of the six action states a profile
// defines.
type ProfileOwners struct {
	Planning             StepOwner `toml:"planning"`
	PlanReview           StepOwner `toml:"plan_review"`
	Implementation       StepOwner `toml:"implementation"`
	ImplementationReview StepOwner `toml:"implementation_review"`
	Shipment             StepOwner `toml:"shipment"`
	ShipmentReview       StepOwner `toml:"shipment_review"`
}

// Transition is one allowed (from, to) state pair. From may be the
// wildcard "*", meaning any state.
type Transition struct {
	From string
	To   string
}

// ProfileDefinition is a fully normalized, ready-to-use workflow: its state
// set, terminal states, and transition table are all derived from the raw
// TOML definition by normalizeProfileDefinition.
type ProfileDefinition struct {
	ID                       string
	Aliases                  []string
	Description              string
	PlanningMode             GateMode
	ImplementationReviewMode GateMode
	Output                   OutputMode
	Owners                   ProfileOwners
	InitialState             types.KnotState
	States                   []types.KnotState
	TerminalStates           []types.KnotState
	Transitions              []Transition
}

type rawFile struct {
	Profiles []rawProfile `toml:"profiles"`
}

type rawProfile struct {
	ID                       string        `toml:"id"`
	Description              string        `toml:"description"`
	PlanningMode             GateMode      `toml:"planning_mode"`
	ImplementationReviewMode GateMode      `toml:"implementation_review_mode"`
	Output                   OutputMode    `toml:"output"`
	Owners                   ProfileOwners `toml:"owners"`
}

// Registry is a loaded, queryable set of profile definitions, keyed by
// canonical id with a secondary alias index.
type Registry struct {
	profiles map[string]ProfileDefinition
	aliases  map[string]string
}

// Load parses the engine's built-in profiles.toml bundle.
func Load() (*Registry, error) {
	return FromTOML(string(embeddedProfilesTOML))
}

// FromTOML parses raw profile TOML into a Registry. Exposed for tests and
// for repo-local profile overrides.
func FromTOML(raw string) (*Registry, error) {
	var file rawFile
	if _, err := toml.Decode(raw, &file); err != nil {
		return nil, &Error{Kind: KindTOML, Message: err.Error(), Err: err}
	}
	if len(file.Profiles) == 0 {
		return nil, &Error{Kind: KindInvalidDefinition, Message: "at least one profile must be defined"}
	}

	profiles := make(map[string]ProfileDefinition, len(file.Profiles))
	aliases := make(map[string]string)

	for _, raw := range file.Profiles {
		profile, err := normalizeProfileDefinition(raw)
		if err != nil {
			return nil, err
		}
		if _, exists := profiles[profile.ID]; exists {
			return nil, &Error{Kind: KindInvalidDefinition, Message: "duplicate profile id in profile file"}
		}
		profiles[profile.ID] = profile
		for _, alias := range profile.Aliases {
			aliases[alias] = profile.ID
		}
	}

	return &Registry{profiles: profiles, aliases: aliases}, nil
}

// List returns every profile, sorted by id.
func (r *Registry) List() []ProfileDefinition {
	values := make([]ProfileDefinition, 0, len(r.profiles))
	for _, p := range r.profiles {
		values = append(values, p)
	}
	sort.Slice(values, func(i, j int) bool { return values[i].ID < values[j].ID })
	return values
}

// Resolve normalizes and looks up profileID, treating a nil or empty
// pointer as a MissingProfileReference error.
func (r *Registry) Resolve(profileID *string) (*ProfileDefinition, error) {
	if profileID == nil {
		return nil, &Error{Kind: KindMissingProfileReference, Message: "profile id is required"}
	}
	id, ok := normalizeProfileID(*profileID)
	if !ok {
		return nil, &Error{Kind: KindMissingProfileReference, Message: "profile id is required"}
	}
	profile, ok := r.lookup(id)
	if !ok {
		return nil, &Error{Kind: KindUnknownProfile, ProfileID: id, Message: fmt.Sprintf("unknown profile %q", id)}
	}
	return profile, nil
}

// Require looks up profileID directly (not via an Option-like pointer),
// for callers that already know a profile id string was supplied.
func (r *Registry) Require(profileID string) (*ProfileDefinition, error) {
	id, ok := normalizeProfileID(profileID)
	if !ok {
		return nil, &Error{Kind: KindUnknownProfile, ProfileID: profileID, Message: fmt.Sprintf("unknown profile %q", profileID)}
	}
	profile, ok := r.lookup(id)
	if !ok {
		return nil, &Error{Kind: KindUnknownProfile, ProfileID: id, Message: fmt.Sprintf("unknown profile %q", id)}
	}
	return profile, nil
}

func (r *Registry) lookup(normalizedID string) (*ProfileDefinition, bool) {
	if p, ok := r.profiles[normalizedID]; ok {
		return &p, true
	}
	canonical, ok := r.aliases[normalizedID]
	if !ok {
		return nil, false
	}
	p, ok := r.profiles[canonical]
	if !ok {
		return nil, false
	}
	return &p, true
}

// IsTerminalState reports whether state is one of this profile's terminal
// states.
func (p *ProfileDefinition) IsTerminalState(state types.KnotState) bool {
	for _, s := range p.TerminalStates {
		if s == state {
			return true
		}
	}
	return false
}

// RequireState returns an UnknownState error if state is not part of this
// profile's state set.
func (p *ProfileDefinition) RequireState(state types.KnotState) error {
	for _, s := range p.States {
		if s == state {
			return nil
		}
	}
	return &Error{Kind: KindUnknownState, ProfileID: p.ID, State: state, Message: fmt.Sprintf("unknown state %q for profile %q", state, p.ID)}
}

// ValidateTransition admits a state change from "from" to "to" under this
// profile, unless force is set (in which case only state-set membership is
// checked) or from == to (always allowed).
func (p *ProfileDefinition) ValidateTransition(from, to types.KnotState, force bool) error {
	if err := p.RequireState(from); err != nil {
		return err
	}
	if err := p.RequireState(to); err != nil {
		return err
	}

	if force || from == to {
		return nil
	}

	for _, t := range p.Transitions {
		if (t.From == string(from) || t.From == wildcardState) && t.To == string(to) {
			return nil
		}
	}

	return &Error{
		Kind:      KindInvalidTransition,
		ProfileID: p.ID,
		Message:   fmt.Sprintf("invalid state transition in profile %q: %s -> %s", p.ID, from, to),
		Transition: &InvalidWorkflowTransition{ProfileID: p.ID, From: from, To: to},
	}
}

// NextHappyPathState returns the state that follows current in this
// profile's canonical linear sequence (spec.md §4.3's "Next happy-path
// state"), or ok=false if current is terminal or not part of this
// profile's state set.
func (p *ProfileDefinition) NextHappyPathState(current types.KnotState) (next types.KnotState, ok bool) {
	if p.IsTerminalState(current) {
		return "", false
	}
	for i, s := range p.States {
		if s == current {
			if i+1 < len(p.States) {
				return p.States[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

func normalizeProfileID(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	return strings.ToLower(trimmed), true
}

func normalizeProfileDefinition(raw rawProfile) (ProfileDefinition, error) {
	id, ok := normalizeProfileID(raw.ID)
	if !ok {
		return ProfileDefinition{}, &Error{Kind: KindInvalidDefinition, Message: "profile id is required"}
	}
	aliases := append([]string(nil), legacyAliases(id)...)

	states := append([]types.KnotState(nil), types.AllStates...)
	if raw.PlanningMode == GateSkipped {
		states = removeStates(states, types.PlanningStates)
	}
	if raw.ImplementationReviewMode == GateSkipped {
		states = removeStates(states, types.ImplementationReviewStates)
	}

	stateSet := make(map[types.KnotState]bool, len(states))
	for _, s := range states {
		stateSet[s] = true
	}

	transitions := canonicalTransitions()
	if raw.PlanningMode == GateOptional || raw.PlanningMode == GateSkipped {
		transitions = append(transitions, Transition{From: string(types.StateReadyForPlanning), To: string(types.StateReadyForImplementation)})
	}
	if raw.ImplementationReviewMode == GateOptional || raw.ImplementationReviewMode == GateSkipped {
		transitions = append(transitions, Transition{From: string(types.StateImplementation), To: string(types.StateReadyForShipment)})
	}

	filtered := make([]Transition, 0, len(transitions))
	for _, t := range transitions {
		fromOK := t.From == wildcardState || stateSet[types.KnotState(t.From)]
		toOK := stateSet[types.KnotState(t.To)]
		if fromOK && toOK {
			filtered = append(filtered, t)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].From != filtered[j].From {
			return filtered[i].From < filtered[j].From
		}
		return filtered[i].To < filtered[j].To
	})
	filtered = dedupTransitions(filtered)

	initialState := types.StateReadyForPlanning
	if raw.PlanningMode == GateSkipped {
		initialState = types.StateReadyForImplementation
	}
	if !stateSet[initialState] {
		return ProfileDefinition{}, &Error{Kind: KindInvalidDefinition, Message: fmt.Sprintf("profile %q has invalid initial state %q", id, initialState)}
	}

	return ProfileDefinition{
		ID:                       id,
		Aliases:                  aliases,
		Description:              strings.TrimSpace(raw.Description),
		PlanningMode:             raw.PlanningMode,
		ImplementationReviewMode: raw.ImplementationReviewMode,
		Output:                   raw.Output,
		Owners:                   raw.Owners,
		InitialState:             initialState,
		States:                   states,
		TerminalStates:           []types.KnotState{types.StateShipped, types.StateAbandoned},
		Transitions:              filtered,
	}, nil
}

func removeStates(states, remove []types.KnotState) []types.KnotState {
	excluded := make(map[types.KnotState]bool, len(remove))
	for _, s := range remove {
		excluded[s] = true
	}
	kept := make([]types.KnotState, 0, len(states))
	for _, s := range states {
		if !excluded[s] {
			kept = append(kept, s)
		}
	}
	return kept
}

func dedupTransitions(sorted []Transition) []Transition {
	out := sorted[:0:0]
	for i, t := range sorted {
		if i > 0 && t == sorted[i-1] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func canonicalTransitions() []Transition {
	return []Transition{
		{From: string(types.StateReadyForPlanning), To: string(types.StatePlanning)},
		{From: string(types.StatePlanning), To: string(types.StateReadyForPlanReview)},
		{From: string(types.StateReadyForPlanReview), To: string(types.StatePlanReview)},
		{From: string(types.StatePlanReview), To: string(types.StateReadyForImplementation)},
		{From: string(types.StatePlanReview), To: string(types.StateReadyForPlanning)},
		{From: string(types.StateReadyForImplementation), To: string(types.StateImplementation)},
		{From: string(types.StateImplementation), To: string(types.StateReadyForImplementationReview)},
		{From: string(types.StateReadyForImplementationReview), To: string(types.StateImplementationReview)},
		{From: string(types.StateImplementationReview), To: string(types.StateReadyForShipment)},
		{From: string(types.StateImplementationReview), To: string(types.StateReadyForImplementation)},
		{From: string(types.StateReadyForShipment), To: string(types.StateShipment)},
		{From: string(types.StateShipment), To: string(types.StateReadyForShipmentReview)},
		{From: string(types.StateReadyForShipmentReview), To: string(types.StateShipmentReview)},
		{From: string(types.StateShipmentReview), To: string(types.StateShipped)},
		{From: string(types.StateShipmentReview), To: string(types.StateReadyForImplementation)},
		{From: string(types.StateShipmentReview), To: string(types.StateReadyForShipment)},
		{From: wildcardState, To: string(types.StateDeferred)},
		{From: wildcardState, To: string(types.StateAbandoned)},
	}
}

func legacyAliases(id string) []string {
	switch id {
	case "autopilot":
		return []string{"automation_granular", "default", "delivery", "automation", "granular"}
	case "semiauto":
		return []string{"human_gate", "human", "coarse", "pr_human_gate"}
	default:
		return nil
	}
}
