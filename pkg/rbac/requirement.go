package rbac

import "strings"

// Requirement names a permission an operation needs. The zero value names
// no permission and never allows.
type Requirement struct {
	name string
}

// Require returns the requirement for a single permission name. The name is
// trimmed and lower-cased; existence is checked by the engine, not here.
func Require(name string) Requirement {
	return Requirement{name: normalizeName(name)}
}

// Name returns the normalized permission name.
func (r Requirement) Name() string {
	return r.name
}

func (r Requirement) String() string {
	return r.name
}

// Requirements is a conjunctive list: every entry must allow.
type Requirements []Requirement

// AllOf builds a deduplicated conjunctive requirement list, preserving the
// order of first appearance.
func AllOf(names ...string) Requirements {
	reqs := make([]Requirement, 0, len(names))
	for _, n := range names {
		reqs = append(reqs, Require(n))
	}
	return dedupe(reqs)
}

// Names returns the permission names in order.
func (rs Requirements) Names() []string {
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, r.name)
	}
	return names
}

func dedupe(reqs []Requirement) Requirements {
	seen := make(map[string]struct{}, len(reqs))
	out := make(Requirements, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.name]; ok {
			continue
		}
		seen[r.name] = struct{}{}
		out = append(out, r)
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
