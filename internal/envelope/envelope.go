package envelope

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error is the uniform body returned when a downstream service fails.
type Error struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Error       string   `json:"error"`
	RequestID   string   `json:"requestId"`
	Timestamp   string   `json:"timestamp"`
	Suggestions []string `json:"suggestions"`
}

// NotFound is the body returned for routes no service is mounted under.
type NotFound struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Path        string   `json:"path"`
	RequestID   string   `json:"requestId"`
	Suggestions []string `json:"suggestions"`
}

// ServiceUnavailable builds the 503 envelope for a failing service.
func ServiceUnavailable(service, detail, requestID string) Error {
	return Error{
		Status:    "error",
		Message:   service + " service temporarily unavailable",
		Error:     detail,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Suggestions: []string{
			"Retry the request in a few seconds",
			"Check the gateway status at /api/gateway-status",
		},
	}
}

// RouteNotFound builds the 404 envelope for an unmatched path.
func RouteNotFound(path, requestID string) NotFound {
	return NotFound{
		Status:    "error",
		Message:   "Route not found",
		Path:      path,
		RequestID: requestID,
		Suggestions: []string{
			"Check the request path for typos",
			"List available routes at /api/gateway-status",
		},
	}
}

// Write serializes the body as JSON with the given status code and echoes
// the correlation id so callers can always quote it to support.
func Write(w http.ResponseWriter, code int, requestID string, body any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
