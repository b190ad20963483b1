package calendly

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureFreshnessWindow is how far in the past a webhook timestamp may be
// before the delivery is rejected as a replay.
const SignatureFreshnessWindow = 300 * time.Second

// VerifyOutcome categorizes a signature check for logging.
type VerifyOutcome string

const (
	OutcomeValid           VerifyOutcome = "valid"
	OutcomeBypassed        VerifyOutcome = "bypassed"
	OutcomeMissingHeader   VerifyOutcome = "missing_header"
	OutcomeMalformedHeader VerifyOutcome = "malformed_header"
	OutcomeStaleTimestamp  VerifyOutcome = "stale_timestamp"
	OutcomeMismatch        VerifyOutcome = "mismatch"
)

// VerifySignature checks a Calendly webhook signature header of the form
// "t=<unix-seconds>,v1=<hex-hmac-sha256>" against the raw request body. The
// signed payload is "{t}.{body}".
//
// An empty secret means verification is bypassed and the delivery accepted;
// the caller decides whether bypass is permitted (dev mode) before passing an
// empty secret here.
func VerifySignature(header string, body []byte, secret string, now time.Time) (bool, VerifyOutcome) {
	if secret == "" {
		return true, OutcomeBypassed
	}

	if header == "" {
		return false, OutcomeMissingHeader
	}

	parts := map[string]string{}
	for _, item := range strings.Split(header, ",") {
		if key, value, ok := strings.Cut(item, "="); ok {
			parts[strings.TrimSpace(key)] = value
		}
	}

	timestamp := parts["t"]
	signature := parts["v1"]
	if timestamp == "" || signature == "" {
		return false, OutcomeMalformedHeader
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false, OutcomeMalformedHeader
	}
	if ts < now.Add(-SignatureFreshnessWindow).Unix() {
		return false, OutcomeStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return false, OutcomeMismatch
	}
	return true, OutcomeValid
}

// SignPayload computes the signature header value for a body at a given
// timestamp. Used by tests and the webhook simulator.
func SignPayload(body []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
