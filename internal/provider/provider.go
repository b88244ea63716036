// Package provider implements the generator backends. Each backend is
// a hand-rolled HTTP client behind the domain.Generator contract, so
// the orchestrator never sees which one is wired in.
package provider

import "time"

const defaultHTTPTimeout = 120 * time.Second

// Confidence constants derived from the backend finish-reason signal.
// Clean completion is highest, clipped output is medium, a content
// filter is lowest, and anything unrecognized gets the default. A
// backend with no finish signal always reports the default.
const (
	ConfidenceHigh    = 0.9
	ConfidenceDefault = 0.7
	ConfidenceMedium  = 0.6
	ConfidenceLow     = 0.2
)

// FallbackReply is returned when the backend succeeds but produces no
// usable text. Degraded content is still a successful generation.
const FallbackReply = "Sorry, I couldn't come up with a response to that. Could you rephrase?"

// confidenceFromFinishReason maps an OpenAI-style finish reason to a
// confidence value.
func confidenceFromFinishReason(reason string) float64 {
	switch reason {
	case "stop":
		return ConfidenceHigh
	case "length":
		return ConfidenceMedium
	case "content_filter":
		return ConfidenceLow
	default:
		return ConfidenceDefault
	}
}
