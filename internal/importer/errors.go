package importer

import "fmt"

// Kind closes the error taxonomy spec.md §7 defines for import runs.
type Kind string

const (
	KindIo               Kind = "io"
	KindDb               Kind = "db"
	KindJSON             Kind = "json"
	KindEvent            Kind = "event"
	KindParseState       Kind = "parse_state"
	KindInvalidRecord    Kind = "invalid_record"
	KindInvalidTimestamp Kind = "invalid_timestamp"
)

// Error is the importer package's single exported error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidRecord:
		return fmt.Sprintf("invalid source record: %s", e.Message)
	case KindInvalidTimestamp:
		return fmt.Sprintf("invalid --since timestamp %q, expected RFC3339 or a natural-language date", e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("importer: %s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("importer: %s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func invalidRecord(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRecord, Message: fmt.Sprintf(format, args...)}
}

func invalidTimestamp(value string) *Error {
	return &Error{Kind: KindInvalidTimestamp, Message: value}
}

func wrapIo(err error) *Error {
	return &Error{Kind: KindIo, Message: err.Error(), Err: err}
}

func wrapDb(err error) *Error {
	return &Error{Kind: KindDb, Message: err.Error(), Err: err}
}

func wrapJSON(err error) *Error {
	return &Error{Kind: KindJSON, Message: err.Error(), Err: err}
}

func wrapEvent(err error) *Error {
	return &Error{Kind: KindEvent, Message: err.Error(), Err: err}
}

func wrapParseState(err error) *Error {
	return &Error{Kind: KindParseState, Message: err.Error(), Err: err}
}

func isInvalidRecord(err error) (*Error, bool) {
	impErr, ok := err.(*Error)
	if !ok || impErr.Kind != KindInvalidRecord {
		return nil, false
	}
	return impErr, true
}
