package panel

import (
	"encoding/json"
	"strings"
)

// classification is the outcome of interpreting one panel response body.
type classification int

const (
	// classifySuccess means the response carried a known success sentinel.
	classifySuccess classification = iota
	// classifyAuthFailure means the panel explicitly rejected the API key.
	classifyAuthFailure
	// classifyAmbiguous means valid JSON without a recognized sentinel.
	// Treated permissively as "probably the right endpoint, shape unknown":
	// failing to provision is directly visible to a paying user, so false
	// negatives cost more than false positives here.
	classifyAmbiguous
	// classifyNotJSON means the body did not parse as JSON at all.
	classifyNotJSON
)

// String returns a short label for attempt logs.
func (c classification) String() string {
	switch c {
	case classifySuccess:
		return "success"
	case classifyAuthFailure:
		return "auth_failure"
	case classifyAmbiguous:
		return "ambiguous"
	default:
		return "not_json"
	}
}

// classify interprets a panel response body. The returned message is the
// panel-reported error or status text, when one could be extracted.
func classify(body []byte) (classification, string) {
	var payload map[string]any
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		// Some panels return bare arrays on reads; any valid JSON counts.
		var anyJSON any
		if errAny := json.Unmarshal(body, &anyJSON); errAny != nil {
			return classifyNotJSON, ""
		}
		return classifyAmbiguous, ""
	}

	message := extractMessage(payload)

	if isSuccessPayload(payload) {
		return classifySuccess, message
	}
	if isFailurePayload(payload) && strings.Contains(strings.ToLower(message), "invalid api key") {
		return classifyAuthFailure, message
	}
	return classifyAmbiguous, message
}

// isSuccessPayload reports whether the payload carries a success sentinel.
func isSuccessPayload(payload map[string]any) bool {
	switch status := payload["status"].(type) {
	case string:
		normalized := strings.ToLower(strings.TrimSpace(status))
		if normalized == "success" || normalized == "ok" || normalized == "true" {
			return true
		}
	case bool:
		if status {
			return true
		}
	}
	if success, ok := payload["success"].(bool); ok && success {
		return true
	}
	if result, ok := payload["result"].(bool); ok && result {
		return true
	}
	return false
}

// isFailurePayload reports whether the payload carries an explicit failure sentinel.
func isFailurePayload(payload map[string]any) bool {
	switch status := payload["status"].(type) {
	case string:
		normalized := strings.ToLower(strings.TrimSpace(status))
		if normalized == "error" || normalized == "failed" || normalized == "false" {
			return true
		}
	case bool:
		if !status {
			return true
		}
	}
	if success, ok := payload["success"].(bool); ok && !success {
		return true
	}
	if result, ok := payload["result"].(bool); ok && !result {
		return true
	}
	return false
}

// extractMessage pulls the first human-readable message field from a payload.
func extractMessage(payload map[string]any) string {
	for _, field := range []string{"message", "error", "msg", "reason"} {
		if value, ok := payload[field].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// suggestsAlreadyExists reports whether a panel error message indicates the
// remote account already exists, which triggers the edit-verb fallback.
func suggestsAlreadyExists(message string) bool {
	normalized := strings.ToLower(message)
	return strings.Contains(normalized, "exist") || strings.Contains(normalized, "duplicate") ||
		strings.Contains(normalized, "already") || strings.Contains(normalized, "taken")
}
