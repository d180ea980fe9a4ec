package router

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/dmehra2102/smart-food-ordering/internal/gateway/breaker"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/downstream"
)

const (
	codeUnauthorized       = "unauthorized"
	codeRateLimited        = "rate_limited"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidQuery       = "invalid_query"
	codeNotFound           = "not_found"
	codeCircuitOpen        = "circuit_open"
	codeDownstreamTimeout  = "downstream_timeout"
	codeBadGateway         = "bad_gateway"
	codeInternalError      = "internal_error"
)

const retryLater = "temporarily unavailable, retry later"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDownstreamError renders a failed downstream call. Business errors keep
// their meaning, everything else becomes 502 or a 503 retry-later answer.
func writeDownstreamError(w http.ResponseWriter, err error) {
	var open *breaker.OpenError
	switch {
	case errors.As(err, &open):
		secs := int(math.Ceil(open.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusServiceUnavailable, codeCircuitOpen, retryLater)
	case errors.Is(err, downstream.ErrTimeout):
		writeError(w, http.StatusServiceUnavailable, codeDownstreamTimeout, retryLater)
	case errors.Is(err, downstream.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, downstream.ErrInvalid):
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
	default:
		writeError(w, http.StatusBadGateway, codeBadGateway, "downstream service failed")
	}
}
