package usage

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Quota snapshot headers attached to metered responses.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// SetHeaders attaches the X-RateLimit-* headers for the given decision.
// Unlimited decisions carry no headers: there is no meaningful quota to
// report for an operation the rule table does not know.
func SetHeaders(w http.ResponseWriter, dec Decision) {
	if dec.Unlimited {
		return
	}
	w.Header().Set(HeaderLimit, strconv.Itoa(dec.Limit))
	w.Header().Set(HeaderRemaining, strconv.Itoa(dec.Remaining))
	w.Header().Set(HeaderReset, strconv.FormatInt(dec.ResetAt.Unix(), 10))
}

type rejectionDetails struct {
	Endpoint  string `json:"endpoint"`
	Tier      Tier   `json:"tier"`
	ResetTime string `json:"resetTime"`
}

type rejectionBody struct {
	Error   string           `json:"error"`
	Details rejectionDetails `json:"details"`
}

// WriteRejection writes the 429 response for a rejected admission: the quota
// headers plus Retry-After, and a machine-readable body so well-behaved
// clients can back off deterministically.
func WriteRejection(w http.ResponseWriter, dec Decision, rej *LimitExceededError) {
	SetHeaders(w, dec)
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(int(rej.RetryAfter.Seconds())))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(rejectionBody{
		Error: "Rate limit exceeded",
		Details: rejectionDetails{
			Endpoint:  rej.Operation,
			Tier:      rej.Tier,
			ResetTime: rej.ResetAt.UTC().Format(time.RFC3339),
		},
	})
}
