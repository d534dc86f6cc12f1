package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Feature records the feature name under the key "feature".
func Feature(name string) slog.Attr {
	return slog.String("feature", name)
}

// Actor records an actor identifier under the key "actor".
// An empty id is logged as "anonymous".
func Actor(id string) slog.Attr {
	if id == "" {
		id = "anonymous"
	}
	return slog.String("actor", id)
}

// IP records an IP literal under the key "ip".
func IP(ip string) slog.Attr {
	return slog.String("ip", ip)
}

// FeatureGroup records a group name under the key "group".
func FeatureGroup(name string) slog.Attr {
	return slog.String("group", name)
}

// Percentage records a rollout percentage under the key "percentage".
func Percentage(p int) slog.Attr {
	return slog.Int("percentage", p)
}

// Active records an evaluation result under the key "active".
func Active(active bool) slog.Attr {
	return slog.Bool("active", active)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
