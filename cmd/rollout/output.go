package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/feature"
)

const (
	outputText = "text"
	outputYAML = "yaml"
)

// eventView is the YAML shape of an audit event.
type eventView struct {
	ID        string          `yaml:"id"`
	Name      eventlog.Kind   `yaml:"name"`
	Before    eventlog.Fields `yaml:"before"`
	After     eventlog.Fields `yaml:"after"`
	CreatedAt time.Time       `yaml:"created_at"`
}

type printer struct {
	out    io.Writer
	format string
}

func (p *printer) yaml(v any) error {
	enc := yaml.NewEncoder(p.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (p *printer) feature(f *feature.Feature) error {
	if p.format == outputYAML {
		return p.yaml(f)
	}
	_, err := fmt.Fprintf(p.out, "%s\n  percentage: %d\n  users: %s\n  groups: %s\n  ips: %s\n",
		f.Name, f.Percentage, list(f.Users), list(f.Groups), list(f.IPs))
	return err
}

func (p *printer) features(fs []*feature.Feature) error {
	if p.format == outputYAML {
		return p.yaml(map[string]any{"features": fs})
	}
	for _, f := range fs {
		if err := p.feature(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) active(name, subject string, active bool) error {
	if p.format == outputYAML {
		return p.yaml(map[string]any{"feature": name, "subject": subject, "active": active})
	}
	state := "inactive"
	if active {
		state = "active"
	}
	_, err := fmt.Fprintf(p.out, "%s is %s for %s\n", name, state, subject)
	return err
}

func (p *printer) events(events []eventlog.Event) error {
	if p.format == outputYAML {
		views := make([]eventView, 0, len(events))
		for _, e := range events {
			views = append(views, eventView{
				ID:        e.ID,
				Name:      e.Kind,
				Before:    e.Data.Before,
				After:     e.Data.After,
				CreatedAt: e.CreatedAt.UTC(),
			})
		}
		return p.yaml(map[string]any{"events": views})
	}

	for _, e := range events {
		if _, err := fmt.Fprintf(p.out, "%s  %s\n", e.CreatedAt.UTC().Format(time.RFC3339Nano), e.Kind); err != nil {
			return err
		}
		for _, field := range changedFields(e.Data) {
			if _, err := fmt.Fprintf(p.out, "  %s: %v -> %v\n", field, e.Data.Before[field], e.Data.After[field]); err != nil {
				return err
			}
		}
	}
	return nil
}

func changedFields(c eventlog.Change) []string {
	var fields []string
	for _, name := range []string{feature.FieldPercentage, feature.FieldUsers, feature.FieldGroups, feature.FieldIPs} {
		if _, ok := c.After[name]; ok {
			fields = append(fields, name)
		}
	}
	return fields
}

func list(members []string) string {
	if len(members) == 0 {
		return "-"
	}
	return strings.Join(members, ",")
}
