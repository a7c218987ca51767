package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"headerswitch/logger"
	"headerswitch/models"
)

// RuleCache holds the latest observed flat rule list. Store swaps the whole snapshot;
// readers never lock.
type RuleCache struct {
	rules atomic.Pointer[[]models.HeaderRule]
}

func (c *RuleCache) Store(rules []models.HeaderRule) {
	snapshot := models.CloneRules(rules)
	c.rules.Store(&snapshot)
}

// Load returns the current snapshot. It must not be modified.
func (c *RuleCache) Load() []models.HeaderRule {
	if p := c.rules.Load(); p != nil {
		return *p
	}
	return nil
}

// ApplyRules rewrites a request header list. For each enabled rule with a name, the first
// header matching case-insensitively gets the rule's raw value; if none matches, a new entry
// is appended. The list is modified in place and returned.
func ApplyRules(rules []models.HeaderRule, headers []models.HeaderEntry) []models.HeaderEntry {
	if len(rules) == 0 {
		return headers
	}
	for _, rule := range rules {
		if !rule.Applicable() {
			continue
		}
		name := rule.TrimmedName()
		found := false
		for i := range headers {
			if headers[i].Name != "" && strings.EqualFold(headers[i].Name, name) {
				headers[i].Value = rule.Value
				found = true
				break
			}
		}
		if !found {
			headers = append(headers, models.HeaderEntry{Name: name, Value: rule.Value})
		}
	}
	return headers
}

// HeaderEntriesFromHTTP flattens h into a list sorted by name, one entry per value.
func HeaderEntriesFromHTTP(h http.Header) []models.HeaderEntry {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]models.HeaderEntry, 0, len(names))
	for _, name := range names {
		for _, v := range h[name] {
			entries = append(entries, models.HeaderEntry{Name: name, Value: v})
		}
	}
	return entries
}

func HeaderEntriesToHTTP(entries []models.HeaderEntry) http.Header {
	h := make(http.Header, len(entries))
	for _, e := range entries {
		h.Add(e.Name, e.Value)
	}
	return h
}

// LiveInterceptor rewrites live requests from the flat rule list stored under one key,
// following change notifications for that key.
type LiveInterceptor struct {
	kv     KeyValueStore
	key    string
	cache  RuleCache
	mu     sync.Mutex
	cancel func()
}

func NewLiveInterceptor(kv KeyValueStore, key string) *LiveInterceptor {
	return &LiveInterceptor{kv: kv, key: key}
}

// Start loads the rule list once and subscribes to changes of its key.
func (li *LiveInterceptor) Start(ctx context.Context) error {
	values, err := li.kv.Get(ctx, li.key)
	if err != nil {
		return fmt.Errorf("loading live rules from %q: %w", li.key, err)
	}
	li.cache.Store(models.ParseRuleList(values[li.key]))
	logger.ProxyInfo("LiveInterceptor: loaded %d rules from %q", len(li.cache.Load()), li.key)

	li.mu.Lock()
	defer li.mu.Unlock()
	if li.cancel == nil {
		li.cancel = li.kv.Subscribe(li.onChange)
	}
	return nil
}

func (li *LiveInterceptor) Stop() {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.cancel != nil {
		li.cancel()
		li.cancel = nil
	}
}

func (li *LiveInterceptor) onChange(change models.SettingChange) {
	if change.Key != li.key {
		return
	}
	li.cache.Store(models.ParseRuleList(change.Value))
	logger.ProxyInfo("LiveInterceptor: rule cache replaced (%d rules, %s change)", len(li.cache.Load()), change.Origin)
}

// Rules returns a copy of the cached rule list.
func (li *LiveInterceptor) Rules() []models.HeaderRule {
	return models.CloneRules(li.cache.Load())
}

// HandleRequest applies the cached rules to r's headers. It reports false and leaves r
// alone when the cache is empty.
func (li *LiveInterceptor) HandleRequest(r *http.Request) bool {
	rules := li.cache.Load()
	if len(rules) == 0 {
		return false
	}
	entries := ApplyRules(rules, HeaderEntriesFromHTTP(r.Header))
	r.Header = HeaderEntriesToHTTP(entries)
	return true
}
