package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderRetry     = "Retry-After"
)

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter *int64 `json:"retryAfter,omitempty"`
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func setRateLimitHeaders(h http.Header, dec domain.Decision) {
	h.Set(HeaderLimit, formatInt(dec.Limit))
	h.Set(HeaderRemaining, formatInt(dec.Remaining))
	h.Set(HeaderReset, formatInt(dec.ResetAt.UnixMilli()))
}

func writeTooManyRequests(w http.ResponseWriter, dec domain.Decision) {
	secs := int64(dec.RetryAfter.Seconds())
	w.Header().Set(HeaderRetry, formatInt(secs))
	writeJSONError(w, http.StatusTooManyRequests, errorBody{
		Error:      http.StatusText(http.StatusTooManyRequests),
		Message:    "Rate limit exceeded. Try again in " + formatInt(secs) + " seconds.",
		RetryAfter: &secs,
	})
}

func writeJSONError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
