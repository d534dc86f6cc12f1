package feature

import (
	"errors"
	"math"
	"net/netip"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

const (
	fieldSeparator  = "|"
	memberSeparator = ","
)

// Field names used by Fields and the audit diff.
const (
	FieldPercentage = "percentage"
	FieldGroups     = "groups"
	FieldUsers      = "users"
	FieldIPs        = "ips"
)

// Actor is anything a feature can be evaluated for. Hosts usually wrap their
// own user type; ID must be stable for the actor's lifetime because it drives
// both bucketing and the user allow-list.
type Actor interface {
	ID() string
}

// Anonymous reports whether actor carries no identity: a nil interface or a
// nil pointer, map, slice or func wrapped in one.
func Anonymous(actor Actor) bool {
	if actor == nil {
		return true
	}
	v := reflect.ValueOf(actor)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// UserID is the simplest Actor: a bare identifier.
type UserID string

// ID returns the identifier itself.
func (u UserID) ID() string { return string(u) }

// Feature is the persisted activation state of a single named feature.
type Feature struct {
	Name       string   `json:"name" yaml:"name"`
	Percentage int      `json:"percentage" yaml:"percentage"`
	Users      []string `json:"users" yaml:"users"`
	Groups     []string `json:"groups" yaml:"groups"`
	IPs        []string `json:"ips" yaml:"ips"`
}

// New returns a cleared feature with the given name.
func New(name string) *Feature {
	f := &Feature{Name: name}
	f.Clear()
	return f
}

// Parse decodes the pipe-delimited record produced by String.
// An empty record yields a cleared feature.
func Parse(name, raw string) *Feature {
	f := New(name)
	if raw == "" {
		return f
	}

	parts := strings.Split(raw, fieldSeparator)
	f.Percentage = leadingInt(parts[0])
	if len(parts) > 1 {
		f.Users = splitMembers(parts[1])
	}
	if len(parts) > 2 {
		f.Groups = splitMembers(parts[2])
	}
	if len(parts) > 3 {
		f.IPs = splitMembers(parts[3])
	}
	return f
}

// String serializes the feature as "percentage|users|groups|ips" with
// comma-separated members. The name is not part of the record.
func (f *Feature) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(f.Percentage))
	b.WriteString(fieldSeparator)
	b.WriteString(strings.Join(f.Users, memberSeparator))
	b.WriteString(fieldSeparator)
	b.WriteString(strings.Join(f.Groups, memberSeparator))
	b.WriteString(fieldSeparator)
	b.WriteString(strings.Join(f.IPs, memberSeparator))
	return b.String()
}

// Clone returns a deep copy, so snapshots taken before a mutation stay intact.
func (f *Feature) Clone() *Feature {
	return &Feature{
		Name:       f.Name,
		Percentage: f.Percentage,
		Users:      slices.Clone(f.Users),
		Groups:     slices.Clone(f.Groups),
		IPs:        slices.Clone(f.IPs),
	}
}

// Fields returns the comparable fields keyed by their audit names.
func (f *Feature) Fields() map[string]any {
	return map[string]any{
		FieldPercentage: f.Percentage,
		FieldGroups:     nonNil(f.Groups),
		FieldUsers:      nonNil(f.Users),
		FieldIPs:        nonNil(f.IPs),
	}
}

// Clear resets the feature to the fully deactivated state.
func (f *Feature) Clear() {
	f.Percentage = 0
	f.Users = []string{}
	f.Groups = []string{}
	f.IPs = []string{}
}

// SetPercentage stores p as is. Values of 100 or more behave as always on
// because buckets never reach 100.
func (f *Feature) SetPercentage(p int) {
	f.Percentage = p
}

// AddUser allow-lists the actor. Nil actors, typed nil pointers included,
// are ignored.
func (f *Feature) AddUser(actor Actor) {
	if Anonymous(actor) {
		return
	}
	f.AddUserID(actor.ID())
}

// AddUserID allow-lists a raw user identifier.
func (f *Feature) AddUserID(id string) {
	f.Users = addMember(f.Users, id)
}

// RemoveUser drops the actor from the allow-list. Nil actors are ignored.
func (f *Feature) RemoveUser(actor Actor) {
	if Anonymous(actor) {
		return
	}
	f.RemoveUserID(actor.ID())
}

// RemoveUserID drops a raw user identifier from the allow-list.
func (f *Feature) RemoveUserID(id string) {
	f.Users = removeMember(f.Users, id)
}

// AddGroup references a named group.
func (f *Feature) AddGroup(name string) {
	f.Groups = addMember(f.Groups, name)
}

// RemoveGroup drops a group reference.
func (f *Feature) RemoveGroup(name string) {
	f.Groups = removeMember(f.Groups, name)
}

// AddIP allow-lists an IP literal. Invalid addresses are silently ignored.
func (f *Feature) AddIP(ip string) {
	if !ValidIP(ip) {
		return
	}
	f.IPs = addMember(f.IPs, ip)
}

// RemoveIP drops an IP literal from the allow-list.
func (f *Feature) RemoveIP(ip string) {
	f.IPs = removeMember(f.IPs, ip)
}

// HasUser reports whether id is explicitly allow-listed.
func (f *Feature) HasUser(id string) bool {
	return slices.Contains(f.Users, id)
}

// HasIP reports whether ip is explicitly allow-listed.
func (f *Feature) HasIP(ip string) bool {
	return slices.Contains(f.IPs, ip)
}

// ValidIP reports whether s is a syntactically valid IPv4 or IPv6 literal.
func ValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// ValidMember reports whether s can be stored as a user or group without
// breaking the record: it must be non-empty and free of '|' and ','.
func ValidMember(s string) bool {
	return s != "" && !strings.ContainsAny(s, fieldSeparator+memberSeparator)
}

func addMember(set []string, v string) []string {
	if slices.Contains(set, v) {
		return set
	}
	return append(set, v)
}

func removeMember(set []string, v string) []string {
	return slices.DeleteFunc(set, func(m string) bool { return m == v })
}

func splitMembers(s string) []string {
	if s == "" {
		return []string{}
	}
	members := make([]string, 0, strings.Count(s, memberSeparator)+1)
	for _, m := range strings.Split(s, memberSeparator) {
		if m == "" {
			continue
		}
		members = addMember(members, m)
	}
	return members
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// leadingInt converts the leading optional sign and decimal digits of s,
// ignoring whatever follows. Strings without digits convert to zero and
// out-of-range values saturate.
func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\n")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if errors.Is(err, strconv.ErrRange) {
		if s[0] == '-' {
			return math.MinInt
		}
		return math.MaxInt
	}
	if err != nil {
		return 0
	}
	return n
}
