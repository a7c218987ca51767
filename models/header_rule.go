package models

import (
	"strings"

	"github.com/tidwall/gjson"
)

// HeaderRule is one user-edited header override.
type HeaderRule struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// DefaultHeaderRule is the row a new profile or an "add rule" action starts with.
func DefaultHeaderRule() HeaderRule {
	return HeaderRule{Enabled: true}
}

// TrimmedName returns the header name as it goes on the wire.
func (r HeaderRule) TrimmedName() string {
	return strings.TrimSpace(r.Name)
}

// Applicable reports whether the rule takes part in header rewriting.
func (r HeaderRule) Applicable() bool {
	return r.Enabled && r.TrimmedName() != ""
}

// CloneRules returns a copy that shares nothing with rules. A nil input yields an empty slice.
func CloneRules(rules []HeaderRule) []HeaderRule {
	out := make([]HeaderRule, len(rules))
	copy(out, rules)
	return out
}

// ParseRuleList decodes a stored flat rule list. Anything other than a JSON array is an
// empty list; missing fields take zero values and non-string names/values are stringified.
func ParseRuleList(raw string) []HeaderRule {
	return rulesFromResult(gjson.Parse(raw))
}

func rulesFromResult(result gjson.Result) []HeaderRule {
	rules := []HeaderRule{}
	if !result.IsArray() {
		return rules
	}
	result.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			rules = append(rules, HeaderRule{})
			return true
		}
		rules = append(rules, HeaderRule{
			Enabled: item.Get("enabled").Bool(),
			Name:    item.Get("name").String(),
			Value:   item.Get("value").String(),
		})
		return true
	})
	return rules
}

// HeaderEntry is one name/value pair of an outgoing request's header list.
type HeaderEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
