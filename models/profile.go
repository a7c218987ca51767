package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// DefaultProfileName is used for migrated and fabricated profiles.
const DefaultProfileName = "Default"

// ProfileSet is an insertion-ordered mapping of profile name to rule list.
// The zero value is an empty set ready to use.
type ProfileSet struct {
	names []string
	rules map[string][]HeaderRule
}

// NewProfileSet returns a set holding a single profile.
func NewProfileSet(name string, rules []HeaderRule) *ProfileSet {
	ps := &ProfileSet{}
	ps.Put(name, rules)
	return ps
}

// DefaultProfileSet is {"Default": [one enabled, empty rule]}.
func DefaultProfileSet() *ProfileSet {
	return NewProfileSet(DefaultProfileName, []HeaderRule{DefaultHeaderRule()})
}

func (ps *ProfileSet) Len() int {
	return len(ps.names)
}

// Names returns profile names in enumeration order.
func (ps *ProfileSet) Names() []string {
	out := make([]string, len(ps.names))
	copy(out, ps.names)
	return out
}

// First returns the first name in enumeration order, or "" for an empty set.
func (ps *ProfileSet) First() string {
	if len(ps.names) == 0 {
		return ""
	}
	return ps.names[0]
}

func (ps *ProfileSet) Has(name string) bool {
	_, ok := ps.rules[name]
	return ok
}

// Get returns the live rule slice for name. Callers that keep it must clone it.
func (ps *ProfileSet) Get(name string) ([]HeaderRule, bool) {
	rules, ok := ps.rules[name]
	return rules, ok
}

// Put replaces the rules of an existing profile in place or appends a new one.
func (ps *ProfileSet) Put(name string, rules []HeaderRule) {
	if ps.rules == nil {
		ps.rules = make(map[string][]HeaderRule)
	}
	if _, ok := ps.rules[name]; !ok {
		ps.names = append(ps.names, name)
	}
	if rules == nil {
		rules = []HeaderRule{}
	}
	ps.rules[name] = rules
}

// Rename moves oldName's rules to newName keeping its position.
func (ps *ProfileSet) Rename(oldName, newName string) bool {
	rules, ok := ps.rules[oldName]
	if !ok || ps.Has(newName) {
		return false
	}
	for i, n := range ps.names {
		if n == oldName {
			ps.names[i] = newName
			break
		}
	}
	delete(ps.rules, oldName)
	ps.rules[newName] = rules
	return true
}

func (ps *ProfileSet) Delete(name string) bool {
	if _, ok := ps.rules[name]; !ok {
		return false
	}
	delete(ps.rules, name)
	for i, n := range ps.names {
		if n == name {
			ps.names = append(ps.names[:i], ps.names[i+1:]...)
			break
		}
	}
	return true
}

// Clone returns a deep copy.
func (ps *ProfileSet) Clone() *ProfileSet {
	out := &ProfileSet{}
	for _, name := range ps.names {
		out.Put(name, CloneRules(ps.rules[name]))
	}
	return out
}

// MarshalJSON writes a JSON object whose keys follow enumeration order.
func (ps *ProfileSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range ps.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		rules, err := json.Marshal(ps.rules[name])
		if err != nil {
			return nil, fmt.Errorf("marshalling rules of profile %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(rules)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping its key order. Rule lists are decoded with the
// same tolerance as ParseRuleList.
func (ps *ProfileSet) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("profile set: invalid JSON")
	}
	result := gjson.ParseBytes(data)
	if !result.IsObject() {
		return fmt.Errorf("profile set: expected a JSON object, got %s", result.Type.String())
	}
	*ps = ProfileSet{}
	result.ForEach(func(key, value gjson.Result) bool {
		ps.Put(key.String(), rulesFromResult(value))
		return true
	})
	return nil
}

// ProfileState is the persisted pair {profiles, currentProfile}.
type ProfileState struct {
	Profiles       *ProfileSet `json:"profiles"`
	CurrentProfile string      `json:"currentProfile"`
}

// NamedProfile is the list form of one profile used by the API.
type NamedProfile struct {
	Name  string       `json:"name"`
	Rules []HeaderRule `json:"rules"`
}

// List returns the profiles as an ordered slice of deep copies.
func (ps *ProfileSet) List() []NamedProfile {
	out := make([]NamedProfile, 0, len(ps.names))
	for _, name := range ps.names {
		out = append(out, NamedProfile{Name: name, Rules: CloneRules(ps.rules[name])})
	}
	return out
}
