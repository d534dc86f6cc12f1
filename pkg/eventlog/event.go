package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/rollout/pkg/feature"
)

// Kind names an audit event type.
type Kind string

// KindUpdate records a feature state transition.
const KindUpdate Kind = "update"

// Fields maps feature field names to their values.
type Fields map[string]any

// Change holds the fields that differ between two feature states.
type Change struct {
	Before Fields `json:"before"`
	After  Fields `json:"after"`
}

// Empty reports whether no field changed.
func (c Change) Empty() bool {
	return len(c.Before) == 0 && len(c.After) == 0
}

// Event is a single audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"name"`
	Data      Change    `json:"data"`
	CreatedAt time.Time `json:"-"`
}

// NewEvent creates an event of the given kind at the given instant, truncated
// to microseconds since that is what the log score keeps.
func NewEvent(kind Kind, data Change, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Data:      data,
		CreatedAt: time.UnixMicro(at.UnixMicro()),
	}
}

// Timestamp returns the creation time in microseconds since the Unix epoch.
func (e Event) Timestamp() int64 {
	return e.CreatedAt.UnixMicro()
}

// Score is the sort key of the event: most recent events get the lowest score.
func (e Event) Score() float64 {
	return -float64(e.Timestamp())
}

// Marshal encodes the event payload stored as the sorted-set member.
// The creation time travels in the score, not in the payload.
func (e Event) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Unmarshal decodes a stored payload and its score back into an event.
// Kinds the log does not know are rejected with ErrInvalidEventKind.
func Unmarshal(payload string, score float64) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, errors.Join(ErrDecodeEvent, err)
	}
	if !e.Kind.valid() {
		return Event{}, errors.Join(ErrInvalidEventKind, fmt.Errorf("kind %q", e.Kind))
	}
	e.CreatedAt = time.UnixMicro(int64(-score))
	return e, nil
}

// UnmarshalJSON restores the Go types produced by feature.Feature.Fields, so
// a decoded change compares equal to the one that was logged.
func (f *Fields) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := make(Fields, len(raw))
	for name, value := range raw {
		var err error
		switch name {
		case feature.FieldPercentage:
			var p int
			err = json.Unmarshal(value, &p)
			out[name] = p
		case feature.FieldUsers, feature.FieldGroups, feature.FieldIPs:
			members := []string{}
			err = json.Unmarshal(value, &members)
			if members == nil {
				members = []string{}
			}
			out[name] = members
		default:
			var v any
			err = json.Unmarshal(value, &v)
			out[name] = v
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	*f = out
	return nil
}
