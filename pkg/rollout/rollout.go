package rollout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/legacy"
	"github.com/dmitrymomot/rollout/pkg/logger"
)

const (
	keyPrefix   = "feature:"
	featuresKey = "feature:__features__"
)

// Store is the part of storage.Store the manager needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Observer is notified after a mutation has been saved.
// eventlog.Logger satisfies it.
type Observer interface {
	Log(ctx context.Context, kind eventlog.Kind, states ...*feature.Feature) error
}

// EvaluationObserver is notified of every activation decision.
type EvaluationObserver interface {
	Evaluated(ctx context.Context, featureName string, active bool, err error)
}

// LegacySource provides feature state in the legacy layout.
// legacy.Reader satisfies it.
type LegacySource interface {
	Info(ctx context.Context, name string) (legacy.Info, error)
}

// Rollout loads, mutates and evaluates features kept in a Store.
//
// Mutations are read-mutate-write cycles without locking: concurrent writers
// of the same feature race and the last write wins. Callers that need strict
// consistency must serialize mutations of a feature themselves.
type Rollout struct {
	store       Store
	groups      *feature.GroupRegistry
	legacy      LegacySource
	events      *eventlog.Logger
	observers   []Observer
	evaluations []EvaluationObserver
	log         *slog.Logger
}

// New creates a Rollout over store.
func New(store Store, opts ...Option) *Rollout {
	if store == nil {
		panic("rollout: store cannot be nil")
	}

	r := &Rollout{
		store:  store,
		groups: feature.NewGroupRegistry(),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("rollout"))
	return r
}

// Groups returns the registry used for group evaluation.
func (r *Rollout) Groups() *feature.GroupRegistry {
	return r.groups
}

// EventLog returns the audit log configured with WithEventLog, or nil.
func (r *Rollout) EventLog() *eventlog.Logger {
	return r.events
}

// DefineGroup registers or replaces a group predicate.
func (r *Rollout) DefineGroup(name string, p feature.Predicate) error {
	if err := r.groups.Define(name, p); err != nil {
		return err
	}
	r.log.Debug("group defined", logger.FeatureGroup(name))
	return nil
}

// Get loads a feature. A feature without a record is returned cleared, or
// migrated from the legacy layout and saved when a legacy source is configured.
func (r *Rollout) Get(ctx context.Context, name string) (*feature.Feature, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	raw, ok, err := r.store.Get(ctx, key(name))
	if err != nil {
		return nil, err
	}
	if ok || r.legacy == nil {
		return feature.Parse(name, raw), nil
	}
	return r.migrate(ctx, name)
}

// Features returns the name of every feature ever saved.
func (r *Rollout) Features(ctx context.Context) ([]string, error) {
	raw, _, err := r.store.Get(ctx, featuresKey)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return []string{}, nil
	}

	names := make([]string, 0, strings.Count(raw, ",")+1)
	for _, n := range strings.Split(raw, ",") {
		if n != "" && !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	return names, nil
}

// IsActive reports whether the feature is on for actor. A nil actor is
// anonymous. Group predicate failures are returned as errors.
func (r *Rollout) IsActive(ctx context.Context, name string, actor feature.Actor) (bool, error) {
	f, err := r.Get(ctx, name)
	if err != nil {
		r.evaluated(ctx, name, false, err)
		return false, err
	}

	active, err := f.ActiveFor(ctx, r.groups, actor)
	r.evaluated(ctx, name, active, err)
	return active, err
}

// IsActiveIP reports whether the feature is on for an IP address.
// An empty ip is anonymous.
func (r *Rollout) IsActiveIP(ctx context.Context, name, ip string) (bool, error) {
	f, err := r.Get(ctx, name)
	if err != nil {
		r.evaluated(ctx, name, false, err)
		return false, err
	}

	active := f.ActiveForIP(ip)
	r.evaluated(ctx, name, active, nil)
	return active, nil
}

// Set loads a feature, applies fn, saves the result and notifies observers
// with the states before and after fn.
func (r *Rollout) Set(ctx context.Context, name string, fn func(f *feature.Feature)) error {
	f, err := r.Get(ctx, name)
	if err != nil {
		return err
	}

	var before *feature.Feature
	if len(r.observers) > 0 {
		before = f.Clone()
	}

	fn(f)
	if err := r.save(ctx, f); err != nil {
		return err
	}

	r.log.DebugContext(ctx, "feature updated",
		logger.Feature(name),
		logger.Percentage(f.Percentage),
	)

	if before == nil {
		return nil
	}
	return r.notify(ctx, before, f)
}

// Activate turns the feature on for everyone.
func (r *Rollout) Activate(ctx context.Context, name string) error {
	return r.Set(ctx, name, func(f *feature.Feature) { f.SetPercentage(100) })
}

// Deactivate resets the feature to the cleared state. The record is kept.
func (r *Rollout) Deactivate(ctx context.Context, name string) error {
	return r.Set(ctx, name, func(f *feature.Feature) { f.Clear() })
}

// ActivateGroup turns the feature on for members of a group.
func (r *Rollout) ActivateGroup(ctx context.Context, name, group string) error {
	if err := validateMember(group); err != nil {
		return err
	}
	return r.Set(ctx, name, func(f *feature.Feature) { f.AddGroup(group) })
}

// DeactivateGroup removes a group from the feature.
func (r *Rollout) DeactivateGroup(ctx context.Context, name, group string) error {
	return r.Set(ctx, name, func(f *feature.Feature) { f.RemoveGroup(group) })
}

// ActivateUser allow-lists an actor. Anonymous actors are ignored.
func (r *Rollout) ActivateUser(ctx context.Context, name string, actor feature.Actor) error {
	if !feature.Anonymous(actor) {
		if err := validateMember(actor.ID()); err != nil {
			return err
		}
	}
	return r.Set(ctx, name, func(f *feature.Feature) { f.AddUser(actor) })
}

// DeactivateUser removes an actor from the allow-list.
func (r *Rollout) DeactivateUser(ctx context.Context, name string, actor feature.Actor) error {
	return r.Set(ctx, name, func(f *feature.Feature) { f.RemoveUser(actor) })
}

// ActivateUserID allow-lists a raw user identifier.
func (r *Rollout) ActivateUserID(ctx context.Context, name, id string) error {
	if err := validateMember(id); err != nil {
		return err
	}
	return r.Set(ctx, name, func(f *feature.Feature) { f.AddUserID(id) })
}

// DeactivateUserID removes a raw user identifier from the allow-list.
func (r *Rollout) DeactivateUserID(ctx context.Context, name, id string) error {
	return r.Set(ctx, name, func(f *feature.Feature) { f.RemoveUserID(id) })
}

// ActivateIP allow-lists an IP address. Invalid addresses are ignored, but
// the (unchanged) state is still saved and observed.
func (r *Rollout) ActivateIP(ctx context.Context, name, ip string) error {
	return r.Set(ctx, name, func(f *feature.Feature) { f.AddIP(ip) })
}

// DeactivateIP removes an IP address from the allow-list.
func (r *Rollout) DeactivateIP(ctx context.Context, name, ip string) error {
	return r.Set(ctx, name, func(f *feature.Feature) { f.RemoveIP(ip) })
}

// ActivatePercentage rolls the feature out to a percentage of actors,
// clamped to [0, 100].
func (r *Rollout) ActivatePercentage(ctx context.Context, name string, percentage int) error {
	p := min(max(percentage, 0), 100)
	return r.Set(ctx, name, func(f *feature.Feature) { f.SetPercentage(p) })
}

// DeactivatePercentage sets the percentage back to zero, keeping allow-lists and groups.
func (r *Rollout) DeactivatePercentage(ctx context.Context, name string) error {
	return r.Set(ctx, name, func(f *feature.Feature) { f.SetPercentage(0) })
}

func (r *Rollout) migrate(ctx context.Context, name string) (*feature.Feature, error) {
	info, err := r.legacy.Info(ctx, name)
	if err != nil {
		return nil, err
	}

	f := feature.New(name)
	f.SetPercentage(info.Percentage)
	for _, g := range info.Groups {
		f.AddGroup(g)
	}
	for _, u := range info.Users {
		f.AddUserID(u)
	}

	if err := r.save(ctx, f); err != nil {
		return nil, err
	}

	r.log.InfoContext(ctx, "feature migrated from legacy layout",
		logger.Feature(name),
		logger.Percentage(f.Percentage),
		slog.Int("users", len(f.Users)),
		slog.Int("groups", len(f.Groups)),
	)
	return f, nil
}

func (r *Rollout) save(ctx context.Context, f *feature.Feature) error {
	if err := r.store.Set(ctx, key(f.Name), f.String()); err != nil {
		return err
	}

	names, err := r.Features(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(names, f.Name) {
		return nil
	}
	return r.store.Set(ctx, featuresKey, strings.Join(append(names, f.Name), ","))
}

func (r *Rollout) notify(ctx context.Context, before, after *feature.Feature) error {
	var errs []error
	for _, o := range r.observers {
		if err := o.Log(ctx, eventlog.KindUpdate, before, after); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}

	r.log.ErrorContext(ctx, "observers failed",
		logger.Feature(after.Name),
		logger.Errors(errs...),
	)
	return errors.Join(append([]error{ErrObserverFailed}, errs...)...)
}

func (r *Rollout) evaluated(ctx context.Context, name string, active bool, err error) {
	for _, o := range r.evaluations {
		o.Evaluated(ctx, name, active, err)
	}
}

func validateName(name string) error {
	if name == "" {
		return ErrEmptyFeatureName
	}
	if strings.Contains(name, ",") {
		return fmt.Errorf("%w: %q", ErrInvalidFeatureName, name)
	}
	return nil
}

// validateMember rejects values that would corrupt the stored record.
func validateMember(v string) error {
	if !feature.ValidMember(v) {
		return fmt.Errorf("%w: %q", ErrInvalidMember, v)
	}
	return nil
}

func key(name string) string {
	return keyPrefix + name
}
