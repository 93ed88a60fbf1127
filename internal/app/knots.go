package app

import (
	"context"
	"sort"
	"strings"

	"github.com/knots/knots/internal/cache"
	"github.com/knots/knots/internal/eventlog"
	"github.com/knots/knots/internal/idgen"
	"github.com/knots/knots/internal/types"
	"github.com/knots/knots/internal/workflow"
)

// defaultProfileID is used to validate a state transition for a knot that
// was created without a profile reference, so set_state still has a
// transition table to check against (spec.md §4.3's alias "default ->
// autopilot").
const defaultProfileID = "autopilot"

// CreateKnot implements spec.md §4.4's create_knot: generate an id,
// resolve the profile (if any), normalize the initial state, emit
// knot.created + idx.knot_head, upsert the hot tier, and return the view.
func (a *App) CreateKnot(ctx context.Context, title string, body *string, initialState string, profileID *string) (*KnotView, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalidArgument("title must not be blank")
	}

	var profile *workflow.ProfileDefinition
	if profileID != nil && strings.TrimSpace(*profileID) != "" {
		p, err := a.Registry.Require(*profileID)
		if err != nil {
			return nil, wrapWorkflow(err)
		}
		profile = p
	}

	rawState := initialState
	if rawState == "" {
		if profile != nil {
			rawState = string(profile.InitialState)
		} else {
			rawState = string(types.StateReadyForPlanning)
		}
	}
	state, err := types.ParseKnotState(rawState)
	if err != nil {
		return nil, wrapParseState(err)
	}
	if profile != nil {
		if err := profile.RequireState(state); err != nil {
			return nil, wrapWorkflow(err)
		}
	}

	slug := idgen.RepoSlug(a.RepoRoot)
	knotID := idgen.GenerateKnotID(slug, func(id string) bool {
		rec, _ := a.Cache.GetKnotHot(ctx, id)
		return rec != nil
	})
	occurredAt := eventlog.NowUTCRFC3339()

	data := map[string]any{
		"title": title,
		"state": state.String(),
	}
	if body != nil {
		data["body"] = *body
	}
	if profile != nil {
		data["profile_id"] = profile.ID
	}

	if err := a.writeFull(eventlog.NewEventID(), occurredAt, knotID, types.KnotCreated, data, nil); err != nil {
		return nil, err
	}

	var profileIDValue *string
	if profile != nil {
		profileIDValue = &profile.ID
	}
	indexEventID, err := a.writeKnotHeadIndex(occurredAt, knotID, title, state, profileIDValue)
	if err != nil {
		return nil, err
	}

	if err := a.Cache.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID:           knotID,
		Title:        title,
		State:        state,
		UpdatedAt:    occurredAt,
		Body:         body,
		Description:  body,
		WorkflowEtag: &indexEventID,
		CreatedAt:    &occurredAt,
		ProfileID:    profileIDValue,
	}); err != nil {
		return nil, wrapDb(err)
	}

	return a.ShowKnot(ctx, knotID)
}

// SetState implements spec.md §4.4's set_state: reject on a stale
// precondition, validate the transition under the knot's profile (or the
// canonical transition table if it has none), emit knot.state_set +
// idx.knot_head, and upsert.
func (a *App) SetState(ctx context.Context, id, nextState string, force bool, expectedEtag *string) (*KnotView, error) {
	current, err := a.Cache.GetKnotHot(ctx, id)
	if err != nil {
		return nil, wrapDb(err)
	}
	if current == nil {
		return nil, notFound(id)
	}
	if expectedEtag != nil {
		currentEtag := ""
		if current.WorkflowEtag != nil {
			currentEtag = *current.WorkflowEtag
		}
		if *expectedEtag != currentEtag {
			return nil, staleHead(id, *expectedEtag, currentEtag)
		}
	}

	next, err := types.ParseKnotState(nextState)
	if err != nil {
		return nil, wrapParseState(err)
	}

	profileID := defaultProfileID
	if current.ProfileID != nil && *current.ProfileID != "" {
		profileID = *current.ProfileID
	}
	profile, err := a.Registry.Require(profileID)
	if err != nil {
		return nil, wrapWorkflow(err)
	}
	if err := profile.ValidateTransition(current.State, next, force); err != nil {
		return nil, wrapWorkflow(err)
	}

	occurredAt := eventlog.NowUTCRFC3339()
	precondition := currentPrecondition(current.WorkflowEtag)
	if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotStateSet, map[string]any{
		"from":  current.State.String(),
		"to":    next.String(),
		"force": force,
	}, precondition); err != nil {
		return nil, err
	}

	indexEventID, err := a.writeKnotHeadIndex(occurredAt, id, current.Title, next, current.ProfileID)
	if err != nil {
		return nil, err
	}

	if err := a.Cache.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID:              id,
		Title:           current.Title,
		State:           next,
		UpdatedAt:       occurredAt,
		Body:            current.Body,
		Description:     current.Description,
		Priority:        current.Priority,
		KnotType:        current.KnotType,
		Tags:            current.Tags,
		Notes:           current.Notes,
		HandoffCapsules: current.HandoffCapsules,
		WorkflowEtag:    &indexEventID,
		CreatedAt:       current.CreatedAt,
		ProfileID:       current.ProfileID,
	}); err != nil {
		return nil, wrapDb(err)
	}

	return a.ShowKnot(ctx, id)
}

// KnotPatch is the set of optionally-present field changes update_knot can
// apply in one call (spec.md §4.4). Each non-nil field emits its own full
// event; a single idx.knot_head is emitted iff at least one field changed.
type KnotPatch struct {
	Title               *string
	Description         *string
	Priority             *int64
	KnotType             *string
	AddTags              []string
	RemoveTags           []string
	AddNote              *types.MetadataEntryInput
	AddHandoffCapsule    *types.MetadataEntryInput
	ExpectedWorkflowEtag *string
}

// UpdateKnot implements spec.md §4.4's update_knot.
func (a *App) UpdateKnot(ctx context.Context, id string, patch KnotPatch) (*KnotView, error) {
	current, err := a.Cache.GetKnotHot(ctx, id)
	if err != nil {
		return nil, wrapDb(err)
	}
	if current == nil {
		return nil, notFound(id)
	}
	if patch.ExpectedWorkflowEtag != nil {
		currentEtag := ""
		if current.WorkflowEtag != nil {
			currentEtag = *current.WorkflowEtag
		}
		if *patch.ExpectedWorkflowEtag != currentEtag {
			return nil, staleHead(id, *patch.ExpectedWorkflowEtag, currentEtag)
		}
	}
	if patch.Priority != nil && (*patch.Priority < 0 || *patch.Priority > 9) {
		return nil, invalidArgument("priority must be between 0 and 9, got %d", *patch.Priority)
	}

	occurredAt := eventlog.NowUTCRFC3339()
	precondition := currentPrecondition(current.WorkflowEtag)
	changed := false

	title := current.Title
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		if trimmed == "" {
			return nil, invalidArgument("title must not be blank")
		}
		if trimmed != current.Title {
			if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotTitleSet, map[string]any{"title": trimmed}, precondition); err != nil {
				return nil, err
			}
			title = trimmed
			changed = true
		}
	}

	description := current.Description
	if patch.Description != nil {
		if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotDescriptionSet, map[string]any{"description": *patch.Description}, precondition); err != nil {
			return nil, err
		}
		description = patch.Description
		changed = true
	}

	priority := current.Priority
	if patch.Priority != nil {
		if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotPrioritySet, map[string]any{"priority": *patch.Priority}, precondition); err != nil {
			return nil, err
		}
		priority = patch.Priority
		changed = true
	}

	knotType := current.KnotType
	if patch.KnotType != nil {
		if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotTypeSet, map[string]any{"type": *patch.KnotType}, precondition); err != nil {
			return nil, err
		}
		knotType = patch.KnotType
		changed = true
	}

	tags := append([]string(nil), current.Tags...)
	for _, raw := range patch.AddTags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" || containsString(tags, tag) {
			continue
		}
		if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotTagAdd, map[string]any{"tag": tag}, precondition); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
		changed = true
	}
	for _, raw := range patch.RemoveTags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		idx := indexOfString(tags, tag)
		if idx < 0 {
			continue
		}
		if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotTagRemove, map[string]any{"tag": tag}, precondition); err != nil {
			return nil, err
		}
		tags = append(tags[:idx], tags[idx+1:]...)
		changed = true
	}

	notes := current.Notes
	if patch.AddNote != nil {
		entry := types.NewMetadataEntry(eventlog.NewEventID, *patch.AddNote, occurredAt)
		if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotNoteAdded, noteEventData(entry), precondition); err != nil {
			return nil, err
		}
		notes = append(append([]types.MetadataEntry(nil), notes...), entry)
		changed = true
	}

	capsules := current.HandoffCapsules
	if patch.AddHandoffCapsule != nil {
		entry := types.NewMetadataEntry(eventlog.NewEventID, *patch.AddHandoffCapsule, occurredAt)
		if err := a.writeFull(eventlog.NewEventID(), occurredAt, id, types.KnotHandoffCapsuleAdded, noteEventData(entry), precondition); err != nil {
			return nil, err
		}
		capsules = append(append([]types.MetadataEntry(nil), capsules...), entry)
		changed = true
	}

	if !changed {
		return a.ShowKnot(ctx, id)
	}

	indexEventID, err := a.writeKnotHeadIndex(occurredAt, id, title, current.State, current.ProfileID)
	if err != nil {
		return nil, err
	}

	if err := a.Cache.UpsertKnotHot(ctx, cache.UpsertKnotHot{
		ID:              id,
		Title:           title,
		State:           current.State,
		UpdatedAt:       occurredAt,
		Body:            description,
		Description:     description,
		Priority:        priority,
		KnotType:        knotType,
		Tags:            tags,
		Notes:           notes,
		HandoffCapsules: capsules,
		WorkflowEtag:    &indexEventID,
		CreatedAt:       current.CreatedAt,
		ProfileID:       current.ProfileID,
	}); err != nil {
		return nil, wrapDb(err)
	}

	return a.ShowKnot(ctx, id)
}

// ListKnots is a pure read from the hot-tier projection.
func (a *App) ListKnots(ctx context.Context) ([]KnotView, error) {
	records, err := a.Cache.ListKnotHot(ctx)
	if err != nil {
		return nil, wrapDb(err)
	}
	views := make([]KnotView, 0, len(records))
	for _, rec := range records {
		views = append(views, viewFromRecord(rec))
	}
	aliases, err := a.aliasMap(ctx)
	if err == nil {
		for i := range views {
			views[i].HierarchicalAlias = aliases[views[i].ID]
		}
	}
	return views, nil
}

// ShowKnot is a pure read of one hot-tier record; it returns a NotFound
// error rather than (nil, nil) so callers get a uniform error path.
func (a *App) ShowKnot(ctx context.Context, id string) (*KnotView, error) {
	rec, err := a.Cache.GetKnotHot(ctx, id)
	if err != nil {
		return nil, wrapDb(err)
	}
	if rec == nil {
		return nil, notFound(id)
	}
	view := viewFromRecord(*rec)
	if aliases, err := a.aliasMap(ctx); err == nil {
		view.HierarchicalAlias = aliases[view.ID]
	}
	return &view, nil
}

func (a *App) writeFull(eventID, occurredAt, knotID string, kind types.FullEventKind, data map[string]any, precondition *types.WorkflowPrecondition) error {
	event := types.FullEvent{
		EventID:      eventID,
		OccurredAt:   occurredAt,
		KnotID:       knotID,
		EventType:    kind.String(),
		Data:         data,
		Precondition: precondition,
	}
	if _, err := a.Writer.Write(types.EventRecord{Full: &event}); err != nil {
		return wrapEventWrite(err)
	}
	return nil
}

func (a *App) writeKnotHeadIndex(occurredAt, knotID, title string, state types.KnotState, profileID *string) (string, error) {
	eventID := eventlog.NewEventID()
	data := map[string]any{
		"knot_id":    knotID,
		"title":      title,
		"state":      state.String(),
		"updated_at": occurredAt,
		"terminal":   state.IsTerminal(),
	}
	if profileID != nil {
		data["profile_id"] = *profileID
	}
	event := types.IndexEvent{
		EventID:    eventID,
		OccurredAt: occurredAt,
		EventType:  types.IdxKnotHead.String(),
		Data:       data,
	}
	if _, err := a.Writer.Write(types.EventRecord{Index: &event}); err != nil {
		return "", wrapEventWrite(err)
	}
	return eventID, nil
}

func currentPrecondition(etag *string) *types.WorkflowPrecondition {
	if etag == nil {
		return nil
	}
	return &types.WorkflowPrecondition{WorkflowEtag: *etag}
}

func noteEventData(entry types.MetadataEntry) map[string]any {
	return map[string]any{
		"entry_id":  entry.EntryID,
		"content":   entry.Content,
		"username":  entry.Username,
		"datetime":  entry.DateTime,
		"agentname": entry.AgentName,
		"model":     entry.Model,
		"version":   entry.Version,
	}
}

func containsString(list []string, value string) bool {
	return indexOfString(list, value) >= 0
}

func indexOfString(list []string, value string) int {
	for i, v := range list {
		if v == value {
			return i
		}
	}
	return -1
}

// sortedCopy returns a stably sorted copy of ids, used by the alias walk
// (internal/app/alias.go) for deterministic root ordering.
func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
