package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/har"
)

// LoadHAR reads a HAR capture from disk
func LoadHAR(path string) (*har.HAR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading HAR file: %w", err)
	}
	var h har.HAR
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decoding HAR: %w", err)
	}
	return &h, nil
}

// FromHAR converts a HAR capture into network_request events. The source
// domain of each request is the host of the page it belongs to, falling back
// to the Referer header. Entries whose source can't be determined are dropped.
func FromHAR(h *har.HAR) []Event {
	if h == nil || h.Log == nil {
		return nil
	}

	// Chrome writes the page URL into the page title
	pageHosts := make(map[string]string, len(h.Log.Pages))
	for _, p := range h.Log.Pages {
		if p == nil {
			continue
		}
		if host, err := HostOf(p.Title); err == nil {
			pageHosts[p.ID] = host
		}
	}

	var events []Event
	for _, e := range h.Log.Entries {
		if e == nil || e.Request == nil || e.Request.URL == "" {
			continue
		}
		source := pageHosts[e.Pageref]
		if source == "" {
			source = refererHost(e.Request)
		}
		if source == "" {
			continue
		}

		details, err := json.Marshal(NetworkRequestDetails{
			URL:    e.Request.URL,
			Method: e.Request.Method,
		})
		if err != nil {
			continue
		}
		events = append(events, Event{
			Type:      EventNetworkRequest,
			Domain:    source,
			Timestamp: harTimestamp(e.StartedDateTime),
			Details:   details,
		})
	}
	return events
}

func refererHost(req *har.Request) string {
	for _, h := range req.Headers {
		if h != nil && strings.EqualFold(h.Name, "referer") {
			if host, err := HostOf(h.Value); err == nil {
				return host
			}
		}
	}
	return ""
}

func harTimestamp(s string) int64 {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
