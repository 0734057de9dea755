package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// decision carries everything response shaping needs, independent of
// whether the request was allowed, denied, or banned.
type decision struct {
	allowed       bool
	banned        bool
	remaining     int64
	resetEpochS   int64
	retryAfterS   int64
	banRemainingS int64
	threatLevel   string
}

func setRateLimitHeaders(w http.ResponseWriter, capacity int64, d decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(capacity, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.resetEpochS, 10))
}

type denialBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Banned            bool   `json:"banned"`
	RetryAfterSeconds int64  `json:"retry_after_seconds"`
	Limit             int64  `json:"limit"`
	Remaining         int64  `json:"remaining"`
	Reset             int64  `json:"reset"`
	ThreatDetected    bool   `json:"threat_detected"`
}

func writeDenial(w http.ResponseWriter, capacity int64, d decision) {
	setRateLimitHeaders(w, capacity, d)
	w.Header().Set("Retry-After", strconv.FormatInt(d.retryAfterS, 10))

	message := "rate limit exceeded"
	if d.banned {
		w.Header().Set("X-Ban-Remaining", strconv.FormatInt(d.banRemainingS, 10))
		w.Header().Set("X-Threat-Level", "BANNED")
		message = "client temporarily banned due to repeated violations"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := denialBody{
		Error:             "Too Many Requests",
		Message:           message,
		Banned:            d.banned,
		RetryAfterSeconds: d.retryAfterS,
		Limit:             capacity,
		Remaining:         d.remaining,
		Reset:             d.resetEpochS,
		ThreatDetected:    d.banned,
	}
	_ = json.NewEncoder(w).Encode(body)
}

func nowEpochSeconds() int64 {
	return time.Now().Unix()
}
