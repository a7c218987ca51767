package core

import (
	"context"
	"net/http"
	"testing"

	"headerswitch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDirective(id, priority int, header, value string) models.Directive {
	return models.Directive{
		ID:       id,
		Priority: priority,
		Action: models.Action{
			Type:           models.ActionModifyHeaders,
			RequestHeaders: []models.RequestHeader{{Header: header, Operation: models.HeaderOperationSet, Value: value}},
		},
		Condition: models.Condition{URLFilter: models.URLFilterAll},
	}
}

func TestMemoryEngineUpdateDynamicRules(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()

	require.NoError(t, engine.UpdateDynamicRules(ctx, models.RuleUpdate{
		AddRules: []models.Directive{setDirective(3, 1, "X-C", "c"), setDirective(1, 1, "X-A", "a")},
	}))
	ids, err := engine.DynamicRuleIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ids)

	_, firstRevision, err := engine.DynamicRules(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, firstRevision)

	// remove and re-add the same id in one update
	require.NoError(t, engine.UpdateDynamicRules(ctx, models.RuleUpdate{
		RemoveRuleIDs: []int{1, 3},
		AddRules:      []models.Directive{setDirective(1, 1, "X-New", "n")},
	}))
	rules, secondRevision, err := engine.DynamicRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "X-New", rules[0].Action.RequestHeaders[0].Header)
	assert.NotEqual(t, firstRevision, secondRevision)
}

func TestMemoryEngineRejectsInvalidUpdateAtomically(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()
	require.NoError(t, engine.UpdateDynamicRules(ctx, models.RuleUpdate{AddRules: []models.Directive{setDirective(1, 1, "X-A", "a")}}))
	_, revision, _ := engine.DynamicRules(ctx)

	mutate := func(fn func(d *models.Directive)) models.Directive {
		d := setDirective(2, 1, "X-B", "b")
		fn(&d)
		return d
	}
	invalid := map[string]models.Directive{
		"duplicate id":          setDirective(1, 1, "X-Dup", "d"),
		"zero id":               mutate(func(d *models.Directive) { d.ID = 0 }),
		"zero priority":         mutate(func(d *models.Directive) { d.Priority = 0 }),
		"unknown action":        mutate(func(d *models.Directive) { d.Action.Type = "block" }),
		"no headers":            mutate(func(d *models.Directive) { d.Action.RequestHeaders = nil }),
		"empty header name":     mutate(func(d *models.Directive) { d.Action.RequestHeaders[0].Header = " " }),
		"space in header name":  mutate(func(d *models.Directive) { d.Action.RequestHeaders[0].Header = "X Bad" }),
		"newline in value":      mutate(func(d *models.Directive) { d.Action.RequestHeaders[0].Value = "a\nInjected: 1" }),
		"unknown operation":     mutate(func(d *models.Directive) { d.Action.RequestHeaders[0].Operation = "replace" }),
		"append without value":  mutate(func(d *models.Directive) { d.Action.RequestHeaders[0] = models.RequestHeader{Header: "X", Operation: "append"} }),
		"remove with value":     mutate(func(d *models.Directive) { d.Action.RequestHeaders[0].Operation = "remove" }),
		"unknown resource type": mutate(func(d *models.Directive) { d.Condition.ResourceTypes = []string{"document"} }),
	}
	for name, d := range invalid {
		t.Run(name, func(t *testing.T) {
			err := engine.UpdateDynamicRules(ctx, models.RuleUpdate{
				AddRules: []models.Directive{setDirective(5, 1, "X-Ok", "ok"), d},
			})
			assert.ErrorIs(t, err, ErrInvalidDirective)

			ids, _ := engine.DynamicRuleIDs(ctx)
			assert.Equal(t, []int{1}, ids)
			_, current, _ := engine.DynamicRules(ctx)
			assert.Equal(t, revision, current)
		})
	}
}

func TestMemoryEngineCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryEngine().UpdateDynamicRules(ctx, models.RuleUpdate{AddRules: []models.Directive{setDirective(1, 1, "X", "y")}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryEngineApplyToHeader(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()

	scriptOnly := setDirective(4, 1, "X-Script", "yes")
	scriptOnly.Condition.ResourceTypes = []string{models.ResourceScript}
	apiOnly := setDirective(5, 1, "X-Api", "yes")
	apiOnly.Condition.URLFilter = "example.com/api*"
	remove := models.Directive{
		ID: 6, Priority: 1,
		Action:    models.Action{Type: models.ActionModifyHeaders, RequestHeaders: []models.RequestHeader{{Header: "Cookie", Operation: models.HeaderOperationRemove}}},
		Condition: models.Condition{URLFilter: models.URLFilterAll},
	}
	appendTrace := models.Directive{
		ID: 7, Priority: 1,
		Action:    models.Action{Type: models.ActionModifyHeaders, RequestHeaders: []models.RequestHeader{{Header: "X-Trace", Operation: models.HeaderOperationAppend, Value: "hs"}}},
		Condition: models.Condition{URLFilter: models.URLFilterAll},
	}

	require.NoError(t, engine.UpdateDynamicRules(ctx, models.RuleUpdate{AddRules: []models.Directive{
		setDirective(1, 1, "X-Env", "low"),
		setDirective(2, 2, "x-env", "high"),
		scriptOnly, apiOnly, remove, appendTrace,
	}}))

	header := http.Header{}
	header.Set("Cookie", "a=b")
	header.Set("X-Trace", "upstream")
	n := engine.ApplyToHeader("https://example.com/api/v1", models.ResourceMainFrame, header)

	assert.Equal(t, "high", header.Get("X-Env"))
	assert.Equal(t, "yes", header.Get("X-Api"))
	assert.Empty(t, header.Get("X-Script"))
	assert.Empty(t, header.Values("Cookie"))
	assert.Equal(t, "upstream, hs", header.Get("X-Trace"))
	assert.Equal(t, 4, n)

	other := http.Header{}
	engine.ApplyToHeader("https://other.org/", models.ResourceScript, other)
	assert.Equal(t, "yes", other.Get("X-Script"))
	assert.Empty(t, other.Get("X-Api"))
	assert.Equal(t, "hs", other.Get("X-Trace"))
}

func TestURLFilterMatches(t *testing.T) {
	tests := []struct {
		filter string
		url    string
		want   bool
	}{
		{"", "https://a.test/", true},
		{"*", "https://a.test/", true},
		{"a.test", "https://a.test/x", true},
		{"b.test", "https://a.test/x", false},
		{"https://*.test/api", "https://a.test/api/users", true},
		{"https://*.test/api", "https://a.test/web", false},
		{"api*users", "https://a.test/api/v2/users", true},
	}
	for _, tt := range tests {
		t.Run(tt.filter+" "+tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, urlFilterMatches(tt.filter, tt.url))
		})
	}
}

func TestResourceTypeOf(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"no metadata", nil, models.ResourceOther},
		{"document", map[string]string{"Sec-Fetch-Dest": "document"}, models.ResourceMainFrame},
		{"iframe", map[string]string{"Sec-Fetch-Dest": "iframe"}, models.ResourceSubFrame},
		{"script", map[string]string{"Sec-Fetch-Dest": "script"}, models.ResourceScript},
		{"image", map[string]string{"Sec-Fetch-Dest": "image"}, models.ResourceImage},
		{"fetch", map[string]string{"Sec-Fetch-Dest": "empty", "Sec-Fetch-Mode": "cors"}, models.ResourceXMLHTTPRequest},
		{"beacon", map[string]string{"Sec-Fetch-Dest": "empty", "Sec-Fetch-Mode": "no-cors", "Ping-To": "https://a.test/"}, models.ResourcePing},
		{"websocket", map[string]string{"Upgrade": "websocket"}, models.ResourceWebSocket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodGet, "http://a.test/", nil)
			require.NoError(t, err)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ResourceTypeOf(r))
		})
	}
}
