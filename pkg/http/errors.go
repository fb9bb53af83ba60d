package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Problem is an RFC 7807 problem details response body.
type Problem struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// WriteProblem writes a problem+json response.
// Cache-Control is always no-store: problem bodies describe authentication
// state and must never be served from a cache.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("Cache-Control", "no-store")
	if p.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(p.RetryAfter))
	}
	w.WriteHeader(p.Status)

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(p)
}

// Common problem writers for consistency
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, Problem{
		Type:   "about:blank",
		Title:  "Bad Request",
		Status: http.StatusBadRequest,
		Detail: detail,
	})
}

func WriteUnauthorized(w http.ResponseWriter, detail string) {
	WriteProblem(w, Problem{
		Type:   "about:blank",
		Title:  "Unauthorized",
		Status: http.StatusUnauthorized,
		Detail: detail,
	})
}

func WriteForbidden(w http.ResponseWriter, detail string) {
	WriteProblem(w, Problem{
		Type:   "about:blank",
		Title:  "Forbidden",
		Status: http.StatusForbidden,
		Detail: detail,
	})
}

func WriteTooManyRequests(w http.ResponseWriter, detail string, retryAfter int) {
	WriteProblem(w, Problem{
		Type:       "about:blank",
		Title:      "Too Many Requests",
		Status:     http.StatusTooManyRequests,
		Detail:     detail,
		RetryAfter: retryAfter,
	})
}

func WriteInternalError(w http.ResponseWriter, detail string) {
	WriteProblem(w, Problem{
		Type:   "about:blank",
		Title:  "Internal Server Error",
		Status: http.StatusInternalServerError,
		Detail: detail,
	})
}

// WriteJSON writes a JSON body with Cache-Control: no-store.
// Used for responses that carry token material or authentication state.
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
