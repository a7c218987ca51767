package browser

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"headerswitch/core"
	"headerswitch/logger"
	"headerswitch/models"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Session is a CDP connection whose requests are rewritten by a MemoryEngine.
type Session struct {
	browser *rod.Browser
	router  *rod.HijackRouter
}

// Attach connects to the browser listening on controlURL and rewrites the headers of every
// request it makes with engine. Call Close to detach.
func Attach(ctx context.Context, controlURL string, engine *core.MemoryEngine) (*Session, error) {
	if controlURL == "" {
		return nil, fmt.Errorf("browser control URL is empty")
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser at %s: %w", controlURL, err)
	}

	router := browser.HijackRequests()
	if err := router.Add("*", "", func(hj *rod.Hijack) {
		rewriteHijacked(hj, engine)
	}); err != nil {
		return nil, fmt.Errorf("installing request hijack: %w", err)
	}
	go router.Run()

	logger.Info("Browser: attached to %s", controlURL)
	return &Session{browser: browser, router: router}, nil
}

// Close stops hijacking and drops the CDP connection without closing the browser itself.
func (s *Session) Close() error {
	if err := s.router.Stop(); err != nil {
		logger.Error("Browser: stopping hijack router: %v", err)
	}
	logger.Info("Browser: detached")
	return nil
}

func rewriteHijacked(hj *rod.Hijack, engine *core.MemoryEngine) {
	if hj == nil || hj.Request == nil || hj.Request.URL() == nil {
		return
	}
	req := hj.Request.Req()
	header := req.Header.Clone()
	resourceType := ResourceTypeFromCDP(hj.Request.Type())

	n := engine.ApplyToHeader(hj.Request.URL().String(), resourceType, header)
	if n == 0 {
		hj.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}
	logger.Debug("Browser: %s %s (%s) - %d header modifications", req.Method, hj.Request.URL().String(), resourceType, n)
	hj.ContinueRequest(&proto.FetchContinueRequest{Headers: FetchHeaders(header)})
}

// FetchHeaders converts header into the CDP entry list, sorted by name.
func FetchHeaders(header http.Header) []*proto.FetchHeaderEntry {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*proto.FetchHeaderEntry, 0, len(names))
	for _, name := range names {
		for _, v := range header[name] {
			entries = append(entries, &proto.FetchHeaderEntry{Name: name, Value: v})
		}
	}
	return entries
}

// ResourceTypeFromCDP maps a CDP resource type to the declarative resource type. Frames
// report as Document, so every document is treated as a main frame.
func ResourceTypeFromCDP(t proto.NetworkResourceType) string {
	switch t {
	case proto.NetworkResourceTypeDocument:
		return models.ResourceMainFrame
	case proto.NetworkResourceTypeStylesheet:
		return models.ResourceStylesheet
	case proto.NetworkResourceTypeScript:
		return models.ResourceScript
	case proto.NetworkResourceTypeImage:
		return models.ResourceImage
	case proto.NetworkResourceTypeFont:
		return models.ResourceFont
	case proto.NetworkResourceTypeMedia, proto.NetworkResourceTypeTextTrack:
		return models.ResourceMedia
	case proto.NetworkResourceTypeXHR, proto.NetworkResourceTypeFetch, proto.NetworkResourceTypeEventSource:
		return models.ResourceXMLHTTPRequest
	case proto.NetworkResourceTypeWebSocket:
		return models.ResourceWebSocket
	case proto.NetworkResourceTypePing:
		return models.ResourcePing
	case proto.NetworkResourceTypeCSPViolationReport:
		return models.ResourceCSPReport
	}
	return models.ResourceOther
}
