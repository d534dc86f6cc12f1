package eventlog

import (
	"reflect"
	"time"

	"github.com/dmitrymomot/rollout/pkg/feature"
)

// Diff compares two snapshots of a feature field by field and returns an
// update event holding only the fields whose values differ. Identical states
// still produce an event, with an empty change.
func Diff(before, after *feature.Feature, at time.Time) Event {
	return NewEvent(KindUpdate, diffFields(before.Fields(), after.Fields()), at)
}

func diffFields(before, after map[string]any) Change {
	change := Change{Before: Fields{}, After: Fields{}}
	for name, b := range before {
		a, shared := after[name]
		if !shared || reflect.DeepEqual(a, b) {
			continue
		}
		change.Before[name] = b
		change.After[name] = a
	}
	return change
}
