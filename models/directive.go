package models

import "encoding/json"

// Declarative rule wire format, as accepted by the browser's dynamic rule API.
// Field names follow that API so an exported list can be loaded as-is.

const (
	ActionModifyHeaders = "modifyHeaders"

	HeaderOperationSet    = "set"
	HeaderOperationAppend = "append"
	HeaderOperationRemove = "remove"

	DirectivePriority = 1
	URLFilterAll      = "*"
)

const (
	ResourceMainFrame      = "main_frame"
	ResourceSubFrame       = "sub_frame"
	ResourceStylesheet     = "stylesheet"
	ResourceScript         = "script"
	ResourceImage          = "image"
	ResourceFont           = "font"
	ResourceObject         = "object"
	ResourceXMLHTTPRequest = "xmlhttprequest"
	ResourcePing           = "ping"
	ResourceCSPReport      = "csp_report"
	ResourceMedia          = "media"
	ResourceWebSocket      = "websocket"
	ResourceOther          = "other"
)

// AllResourceTypes is the universal scope every compiled directive targets.
func AllResourceTypes() []string {
	return []string{
		ResourceMainFrame, ResourceSubFrame, ResourceStylesheet, ResourceScript,
		ResourceImage, ResourceFont, ResourceObject, ResourceXMLHTTPRequest, ResourcePing,
		ResourceCSPReport, ResourceMedia, ResourceWebSocket, ResourceOther,
	}
}

// Directive is one declarative header rule installed in the network engine.
type Directive struct {
	ID        int       `json:"id"`
	Priority  int       `json:"priority"`
	Action    Action    `json:"action"`
	Condition Condition `json:"condition"`
}

// Action - what to do with a matching request
type Action struct {
	Type           string          `json:"type"`
	RequestHeaders []RequestHeader `json:"requestHeaders,omitempty"`
}

// RequestHeader - one header modification
type RequestHeader struct {
	Header    string `json:"header"`
	Operation string `json:"operation"` // "set", "append", "remove"
	Value     string `json:"value"`
}

// MarshalJSON always writes value for set and append, even when empty, and never for remove.
func (h RequestHeader) MarshalJSON() ([]byte, error) {
	type plain RequestHeader
	if h.Operation == HeaderOperationRemove {
		return json.Marshal(struct {
			Header    string `json:"header"`
			Operation string `json:"operation"`
		}{h.Header, h.Operation})
	}
	return json.Marshal(plain(h))
}

// Condition - when the directive applies
type Condition struct {
	URLFilter     string   `json:"urlFilter,omitempty"`
	ResourceTypes []string `json:"resourceTypes,omitempty"`
}

// RuleUpdate is a single atomic change to the engine's dynamic rule set.
type RuleUpdate struct {
	RemoveRuleIDs []int       `json:"removeRuleIds,omitempty"`
	AddRules      []Directive `json:"addRules,omitempty"`
}
