package types

// EventStream names one of the two append-only streams a knot event can
// belong to (spec.md §4.1 / §6).
type EventStream string

const (
	StreamFull  EventStream = "full"
	StreamIndex EventStream = "index"
)

// RootDir returns the repo-relative directory an event of this stream is
// filed under.
func (s EventStream) RootDir() string {
	switch s {
	case StreamIndex:
		return ".knots/index"
	default:
		return ".knots/events"
	}
}

// FullEventKind enumerates the event.type values that appear on the full
// stream.
type FullEventKind string

const (
	KnotCreated           FullEventKind = "knot.created"
	KnotTitleSet          FullEventKind = "knot.title_set"
	KnotBodySet           FullEventKind = "knot.body_set"
	KnotDescriptionSet    FullEventKind = "knot.description_set"
	KnotStateSet          FullEventKind = "knot.state_set"
	KnotPrioritySet       FullEventKind = "knot.priority_set"
	KnotTypeSet           FullEventKind = "knot.type_set"
	KnotCommentAdded      FullEventKind = "knot.comment_added"
	KnotNoteAdded         FullEventKind = "knot.note_added"
	KnotHandoffCapsuleAdded FullEventKind = "knot.handoff_capsule_added"
	KnotTagAdd            FullEventKind = "knot.tag_add"
	KnotTagRemove         FullEventKind = "knot.tag_remove"
	KnotEdgeAdd           FullEventKind = "knot.edge_add"
	KnotEdgeRemove        FullEventKind = "knot.edge_remove"
	KnotReviewDecision    FullEventKind = "knot.review_decision"
)

func (k FullEventKind) String() string { return string(k) }

// IndexEventKind enumerates the event.type values that appear on the index
// stream. There is currently exactly one: the projection head marker.
type IndexEventKind string

const (
	IdxKnotHead IndexEventKind = "idx.knot_head"
)

func (k IndexEventKind) String() string { return string(k) }

// WorkflowPrecondition is an optimistic-concurrency token: a mutation
// carrying one is rejected by the cache if the knot's current
// workflow_etag does not match.
type WorkflowPrecondition struct {
	WorkflowEtag string `json:"workflow_etag"`
}

// FullEvent is a self-describing mutation recorded against a single knot.
type FullEvent struct {
	EventID      string                `json:"event_id"`
	OccurredAt   string                `json:"occurred_at"`
	KnotID       string                `json:"knot_id"`
	EventType    string                `json:"type"`
	Data         map[string]any        `json:"data"`
	Precondition *WorkflowPrecondition `json:"precondition,omitempty"`
}

// IndexEvent is a compact projection-head record: the minimal set of fields
// needed to update the hot/warm/cold cache without replaying the full
// stream. Unlike the original event log this is distilled from, an index
// event may also carry a precondition: the reducer checks it against the
// knot's current workflow_etag before applying the projection update
// (spec.md §4.7), so a stale head recorded on one replica can't silently
// overwrite a newer one produced on another.
type IndexEvent struct {
	EventID      string                `json:"event_id"`
	OccurredAt   string                `json:"occurred_at"`
	EventType    string                `json:"type"`
	Data         map[string]any        `json:"data"`
	Precondition *WorkflowPrecondition `json:"precondition,omitempty"`
}

// EventRecord is the tagged union of the two event envelope shapes. Exactly
// one of Full or Index is non-nil.
type EventRecord struct {
	Full  *FullEvent
	Index *IndexEvent
}

// Stream reports which stream this record belongs to.
func (r EventRecord) Stream() EventStream {
	if r.Index != nil {
		return StreamIndex
	}
	return StreamFull
}

// EventID returns the record's identity regardless of which variant it is.
func (r EventRecord) EventID() string {
	if r.Index != nil {
		return r.Index.EventID
	}
	return r.Full.EventID
}

// OccurredAt returns the record's timestamp regardless of which variant it is.
func (r EventRecord) OccurredAt() string {
	if r.Index != nil {
		return r.Index.OccurredAt
	}
	return r.Full.OccurredAt
}

// EventType returns the record's type string regardless of which variant it is.
func (r EventRecord) EventType() string {
	if r.Index != nil {
		return r.Index.EventType
	}
	return r.Full.EventType
}
