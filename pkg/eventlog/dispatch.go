package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/rollout/pkg/feature"
)

// handler processes one event kind. Its states are already validated
// against the expected argument count for the kind.
type handler func(l *Logger, ctx context.Context, states []*feature.Feature) error

type dispatchEntry struct {
	args   int
	handle handler
}

// dispatch lists every kind the log understands with the number of feature
// states its handler takes.
var dispatch = map[Kind]dispatchEntry{
	KindUpdate: {
		args: 2,
		handle: func(l *Logger, ctx context.Context, states []*feature.Feature) error {
			return l.Update(ctx, states[0], states[1])
		},
	},
}

func (k Kind) valid() bool {
	_, ok := dispatch[k]
	return ok
}

// Kinds returns every supported event kind.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(dispatch))
	for k := range dispatch {
		kinds = append(kinds, k)
	}
	return kinds
}

// Log dispatches a named event to its handler. Unknown kinds fail with
// ErrInvalidEventKind and a wrong number of states with ErrInvalidArgumentCount.
func (l *Logger) Log(ctx context.Context, kind Kind, states ...*feature.Feature) error {
	entry, ok := dispatch[kind]
	if !ok {
		return errors.Join(ErrInvalidEventKind, fmt.Errorf("kind %q", kind))
	}
	if len(states) != entry.args {
		return errors.Join(ErrInvalidArgumentCount,
			fmt.Errorf("event %q: expected %d but got %d", kind, entry.args, len(states)))
	}
	for _, s := range states {
		if s == nil {
			return ErrNilState
		}
	}
	return entry.handle(l, ctx, states)
}
