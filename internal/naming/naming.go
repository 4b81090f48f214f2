// Package naming maps warehouse target names onto the names other systems use
// for the same data.
package naming

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical prefixes stripped when deriving source-side names.
const (
	SourcePrefix    = "S_DVM_"
	WarehouseSchema = "VLT"
)

// Rule transforms a canonical target name.
type Rule struct {
	StripPrefix string
	Lower       bool
	Upper       bool
}

// Apply runs the rule against name.
func (r Rule) Apply(name string) string {
	out := strings.TrimSpace(name)
	if r.StripPrefix != "" && len(out) >= len(r.StripPrefix) &&
		strings.EqualFold(out[:len(r.StripPrefix)], r.StripPrefix) {
		out = out[len(r.StripPrefix):]
	}
	switch {
	case r.Lower:
		out = strings.ToLower(out)
	case r.Upper:
		out = strings.ToUpper(out)
	}
	return out
}

// CollisionError reports two canonical names that map to the same source name.
type CollisionError struct {
	Source string
	Mapped string
	Names  []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("target names %s map to the same %s name %q",
		strings.Join(e.Names, ", "), e.Source, e.Mapped)
}

// Mapper holds the rule for each source. Sources without a rule keep names unchanged.
type Mapper struct {
	rules map[string]Rule
}

// NewMapper builds a mapper from per-source rules.
func NewMapper(rules map[string]Rule) *Mapper {
	m := &Mapper{rules: make(map[string]Rule, len(rules))}
	for source, rule := range rules {
		m.rules[source] = rule
	}
	return m
}

// Default returns the mapping used between the warehouse, the relational store
// and the search platform: relational tables drop the source prefix and are
// lower-case, saved searches share the warehouse name.
func Default() *Mapper {
	return NewMapper(map[string]Rule{
		"relational": {StripPrefix: SourcePrefix, Lower: true},
		"search":     {},
	})
}

// Map returns source's name for canonical target.
func (m *Mapper) Map(source, target string) string {
	rule, ok := m.rules[source]
	if !ok {
		return target
	}
	return rule.Apply(target)
}

// MapAll maps every target for source and fails if two of them collide.
// The result is keyed by canonical name.
func (m *Mapper) MapAll(source string, targets []string) (map[string]string, error) {
	out := make(map[string]string, len(targets))
	seen := make(map[string][]string, len(targets))
	for _, t := range targets {
		mapped := m.Map(source, t)
		out[t] = mapped
		seen[mapped] = appendUnique(seen[mapped], t)
	}

	for mapped, names := range seen {
		if len(names) > 1 {
			sort.Strings(names)
			return nil, &CollisionError{Source: source, Mapped: mapped, Names: names}
		}
	}
	return out, nil
}

// MapChecked maps target for source and verifies no other known target maps
// to the same name. Collisions among the other known targets are ignored.
func (m *Mapper) MapChecked(source, target string, known []string) (string, error) {
	mapped := m.Map(source, target)
	names := []string{target}
	for _, k := range known {
		if k != target && m.Map(source, k) == mapped {
			names = appendUnique(names, k)
		}
	}
	if len(names) > 1 {
		sort.Strings(names)
		return "", &CollisionError{Source: source, Mapped: mapped, Names: names}
	}
	return mapped, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// StripSchema removes a leading "SCHEMA." qualifier.
func StripSchema(schema, qualified string) string {
	prefix := schema + "."
	if len(qualified) >= len(prefix) && strings.EqualFold(qualified[:len(prefix)], prefix) {
		return qualified[len(prefix):]
	}
	return qualified
}

// Qualify prefixes name with schema.
func Qualify(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// HubKeyColumn returns the hub key column counted for a warehouse table.
func HubKeyColumn(table string) string {
	return "H_" + Rule{StripPrefix: SourcePrefix, Upper: true}.Apply(table) + "_KEY"
}
