// Package telemetry defines the already-classified browser records the graph
// consumes: detected services and typed security events.
package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Confidence is a detector verdict strength.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// ParseConfidence maps a detector string onto a Confidence. Unknown or empty
// values are treated as none.
func ParseConfidence(s string) Confidence {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	default:
		return ConfidenceNone
	}
}

// Cookie is one cookie observed on a service
type Cookie struct {
	Name      string `json:"name"`
	IsSession bool   `json:"isSession"`
}

// NRDResult is the newly-registered-domain detector verdict
type NRDResult struct {
	IsNRD      bool   `json:"isNRD"`
	Confidence string `json:"confidence"`
}

// TyposquatResult is the typosquat detector verdict
type TyposquatResult struct {
	IsTyposquat bool   `json:"isTyposquat"`
	Confidence  string `json:"confidence"`
}

// DetectedService is a domain the browser has seen, with everything the
// detectors already decided about it.
type DetectedService struct {
	Domain            string           `json:"domain"`
	HasLoginPage      bool             `json:"hasLoginPage"`
	PrivacyPolicyURL  string           `json:"privacyPolicyUrl,omitempty"`
	TermsOfServiceURL string           `json:"termsOfServiceUrl,omitempty"`
	Cookies           []Cookie         `json:"cookies,omitempty"`
	NRDResult         *NRDResult       `json:"nrdResult,omitempty"`
	TyposquatResult   *TyposquatResult `json:"typosquatResult,omitempty"`
	DetectedAt        int64            `json:"detectedAt,omitempty"` // Unix millis; optional
}

// SessionCookieCount returns how many cookies are session cookies
func (s DetectedService) SessionCookieCount() int {
	n := 0
	for _, c := range s.Cookies {
		if c.IsSession {
			n++
		}
	}
	return n
}

// EventType identifies the kind of a telemetry event
type EventType string

const (
	EventNetworkRequest     EventType = "network_request"
	EventLoginDetected      EventType = "login_detected"
	EventExtensionRequest   EventType = "extension_request"
	EventCSPViolation       EventType = "csp_violation"
	EventAIPromptSent       EventType = "ai_prompt_sent"
	EventAIResponseReceived EventType = "ai_response_received"
	EventCookieSet          EventType = "cookie_set"
	EventNRDDetected        EventType = "nrd_detected"
	EventTyposquatDetected  EventType = "typosquat_detected"
)

// Event is one security-relevant observation. Details carry a type-specific
// payload decoded lazily with DecodeDetails.
type Event struct {
	Type      EventType       `json:"type"`
	Domain    string          `json:"domain"`
	Timestamp int64           `json:"timestamp"` // Unix millis
	Details   json.RawMessage `json:"details,omitempty"`
}

// NetworkRequestDetails is the payload of a network_request event
type NetworkRequestDetails struct {
	URL           string `json:"url"`
	Method        string `json:"method,omitempty"`
	InitiatorType string `json:"initiatorType,omitempty"`
}

// ExtensionRequestDetails is the payload of an extension_request event.
// RiskScore is attached by the extension risk analyzer when available.
type ExtensionRequestDetails struct {
	ExtensionID   string `json:"extensionId"`
	ExtensionName string `json:"extensionName"`
	URL           string `json:"url,omitempty"`
	RiskScore     *int   `json:"riskScore,omitempty"`
}

// CSPViolationDetails is the payload of a csp_violation event
type CSPViolationDetails struct {
	Directive  string `json:"directive,omitempty"`
	BlockedURL string `json:"blockedURL,omitempty"`
}

// AIPromptDetails is the payload of an ai_prompt_sent event. Classifications
// come from the DLP scanner.
type AIPromptDetails struct {
	Provider        string   `json:"provider,omitempty"`
	Model           string   `json:"model,omitempty"`
	Prompt          string   `json:"prompt,omitempty"`
	Classifications []string `json:"classifications,omitempty"`
}

// AIResponseDetails is the payload of an ai_response_received event
type AIResponseDetails struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// DecodeDetails unmarshals an event's details into T. Absent or null details
// decode to the zero value.
func DecodeDetails[T any](e Event) (T, error) {
	var out T
	raw := bytes.TrimSpace(e.Details)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding %s details: %w", e.Type, err)
	}
	return out, nil
}

// Batch is one analysis cycle's worth of telemetry
type Batch struct {
	Services []DetectedService `json:"services"`
	Events   []Event           `json:"events"`
}

// Len returns the number of records in the batch
func (b Batch) Len() int { return len(b.Services) + len(b.Events) }
