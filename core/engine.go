package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"headerswitch/models"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
)

var knownResourceTypes = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range models.AllResourceTypes() {
		m[t] = true
	}
	return m
}()

// MemoryEngine is an in-process declarative engine. It keeps the dynamic rule set, applies
// updates atomically and evaluates the installed rules against outgoing request headers.
type MemoryEngine struct {
	mu       sync.RWMutex
	rules    []models.Directive // sorted by evaluation order
	revision string
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{}
}

func (e *MemoryEngine) DynamicRuleIDs(ctx context.Context) ([]int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]int, 0, len(e.rules))
	for _, r := range e.rules {
		ids = append(ids, r.ID)
	}
	sort.Ints(ids)
	return ids, nil
}

// DynamicRules returns the installed rules ordered by id together with the revision of the
// last applied update.
func (e *MemoryEngine) DynamicRules(ctx context.Context) ([]models.Directive, string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Directive, len(e.rules))
	copy(out, e.rules)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, e.revision, nil
}

// UpdateDynamicRules removes and adds rules as one operation. The resulting rule set is
// validated as a whole; on any problem nothing changes.
func (e *MemoryEngine) UpdateDynamicRules(ctx context.Context, update models.RuleUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	remove := make(map[int]bool, len(update.RemoveRuleIDs))
	for _, id := range update.RemoveRuleIDs {
		remove[id] = true
	}
	next := make([]models.Directive, 0, len(e.rules)+len(update.AddRules))
	seen := make(map[int]bool)
	for _, r := range e.rules {
		if !remove[r.ID] {
			next = append(next, r)
			seen[r.ID] = true
		}
	}
	for _, r := range update.AddRules {
		if err := validateDirective(r); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate rule id %d", ErrInvalidDirective, r.ID)
		}
		seen[r.ID] = true
		next = append(next, cloneDirective(r))
	}

	sort.SliceStable(next, func(i, j int) bool {
		if next[i].Priority != next[j].Priority {
			return next[i].Priority > next[j].Priority
		}
		return next[i].ID < next[j].ID
	})
	e.rules = next
	e.revision = uuid.NewString()
	return nil
}

func validateDirective(d models.Directive) error {
	if d.ID < 1 {
		return fmt.Errorf("%w: rule id %d must be >= 1", ErrInvalidDirective, d.ID)
	}
	if d.Priority < 1 {
		return fmt.Errorf("%w: rule %d priority %d must be >= 1", ErrInvalidDirective, d.ID, d.Priority)
	}
	if d.Action.Type != models.ActionModifyHeaders {
		return fmt.Errorf("%w: rule %d has unsupported action type %q", ErrInvalidDirective, d.ID, d.Action.Type)
	}
	if len(d.Action.RequestHeaders) == 0 {
		return fmt.Errorf("%w: rule %d modifies no headers", ErrInvalidDirective, d.ID)
	}
	for _, h := range d.Action.RequestHeaders {
		if strings.TrimSpace(h.Header) == "" {
			return fmt.Errorf("%w: rule %d has an empty header name", ErrInvalidDirective, d.ID)
		}
		if !httpguts.ValidHeaderFieldName(h.Header) {
			return fmt.Errorf("%w: rule %d has invalid header name %q", ErrInvalidDirective, d.ID, h.Header)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return fmt.Errorf("%w: rule %d has invalid value for %q", ErrInvalidDirective, d.ID, h.Header)
		}
		switch h.Operation {
		case models.HeaderOperationSet:
			// empty values are allowed: a rule may blank a header out
		case models.HeaderOperationAppend:
			if h.Value == "" {
				return fmt.Errorf("%w: rule %d appends an empty value to %q", ErrInvalidDirective, d.ID, h.Header)
			}
		case models.HeaderOperationRemove:
			if h.Value != "" {
				return fmt.Errorf("%w: rule %d removes %q but carries a value", ErrInvalidDirective, d.ID, h.Header)
			}
		default:
			return fmt.Errorf("%w: rule %d has unknown operation %q", ErrInvalidDirective, d.ID, h.Operation)
		}
	}
	for _, t := range d.Condition.ResourceTypes {
		if !knownResourceTypes[t] {
			return fmt.Errorf("%w: rule %d has unknown resource type %q", ErrInvalidDirective, d.ID, t)
		}
	}
	return nil
}

func cloneDirective(d models.Directive) models.Directive {
	d.Action.RequestHeaders = append([]models.RequestHeader(nil), d.Action.RequestHeaders...)
	d.Condition.ResourceTypes = append([]string(nil), d.Condition.ResourceTypes...)
	return d
}

// ApplyToHeader rewrites header for a request to rawURL of the given resource type and
// returns how many header modifications were made. Rules are evaluated by priority, then
// id. Once a header has been set or removed, lower-ranked rules leave it alone.
func (e *MemoryEngine) ApplyToHeader(rawURL, resourceType string, header http.Header) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	settled := make(map[string]bool)
	applied := 0
	for _, d := range e.rules {
		if !conditionMatches(d.Condition, rawURL, resourceType) {
			continue
		}
		for _, h := range d.Action.RequestHeaders {
			key := http.CanonicalHeaderKey(strings.TrimSpace(h.Header))
			if settled[key] {
				continue
			}
			switch h.Operation {
			case models.HeaderOperationSet:
				header.Set(key, h.Value)
				settled[key] = true
			case models.HeaderOperationRemove:
				header.Del(key)
				settled[key] = true
			case models.HeaderOperationAppend:
				if existing := header.Get(key); existing != "" {
					header.Set(key, existing+", "+h.Value)
				} else {
					header.Set(key, h.Value)
				}
			}
			applied++
		}
	}
	return applied
}

func conditionMatches(c models.Condition, rawURL, resourceType string) bool {
	if len(c.ResourceTypes) > 0 {
		found := false
		for _, t := range c.ResourceTypes {
			if t == resourceType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return urlFilterMatches(c.URLFilter, rawURL)
}

// urlFilterMatches treats filter as a substring pattern where '*' matches any run of
// characters. Empty and "*" match every URL.
func urlFilterMatches(filter, rawURL string) bool {
	if filter == "" || filter == models.URLFilterAll {
		return true
	}
	rest := rawURL
	for _, part := range strings.Split(filter, "*") {
		if part == "" {
			continue
		}
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return true
}

// ResourceTypeOf classifies a request from the fetch metadata headers browsers send.
func ResourceTypeOf(r *http.Request) string {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return models.ResourceWebSocket
	}
	switch strings.ToLower(r.Header.Get("Sec-Fetch-Dest")) {
	case "document":
		return models.ResourceMainFrame
	case "iframe", "frame", "fencedframe":
		return models.ResourceSubFrame
	case "style":
		return models.ResourceStylesheet
	case "script", "worker", "sharedworker", "serviceworker":
		return models.ResourceScript
	case "image":
		return models.ResourceImage
	case "font":
		return models.ResourceFont
	case "object", "embed":
		return models.ResourceObject
	case "report":
		return models.ResourceCSPReport
	case "audio", "video", "track":
		return models.ResourceMedia
	case "empty":
		if mode := strings.ToLower(r.Header.Get("Sec-Fetch-Mode")); mode == "cors" || mode == "same-origin" {
			return models.ResourceXMLHTTPRequest
		}
	}
	if r.Header.Get("Ping-To") != "" {
		return models.ResourcePing
	}
	return models.ResourceOther
}
