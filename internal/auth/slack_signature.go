package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Slack request signing, version v0.
const (
	SlackSignatureHeader = "X-Slack-Signature"
	SlackTimestampHeader = "X-Slack-Request-Timestamp"

	slackSignatureVersion = "v0"
	slackMaxClockSkew     = 5 * time.Minute
)

var (
	ErrSignatureMissing = errors.New("slack signature headers missing")
	ErrSignatureStale   = errors.New("slack request timestamp outside the allowed window")
	ErrSignatureInvalid = errors.New("slack signature mismatch")
)

// VerifySlackSignature checks a Slack request signature against the signing
// secret. now is the verifier's clock.
func VerifySlackSignature(secret, timestamp, signature string, body []byte, now time.Time) error {
	if timestamp == "" || signature == "" {
		return ErrSignatureMissing
	}
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	skew := now.Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > slackMaxClockSkew {
		return ErrSignatureStale
	}

	expected := SignSlackRequest(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrSignatureInvalid
	}
	return nil
}

// SignSlackRequest computes the v0 signature for body at timestamp.
func SignSlackRequest(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(slackSignatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return slackSignatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
