package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
)

const (
	DefaultSignatureHeader = "signature-header"
	DefaultReplayWindow    = 300 * time.Second
)

var (
	ErrSecretNotConfigured = errors.New("webhooks: signature secret is not configured")
	ErrSignatureMissing    = errors.New("webhooks: signature header is required")
	ErrSignatureMalformed  = errors.New("webhooks: signature header is malformed")
	ErrSignatureStale      = errors.New("webhooks: signature timestamp outside replay window")
	ErrSignatureMismatch   = errors.New("webhooks: signature verification failed")
)

// SignatureHeader is the parsed form of "t=<unix>,v0=<hex>[,v0=<hex>...]".
type SignatureHeader struct {
	Timestamp  int64
	Signatures []string
}

// ParseSignatureHeader ignores unknown keys. Several v0 entries are kept so
// a rotated secret can be verified against any of them.
func ParseSignatureHeader(value string) (SignatureHeader, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return SignatureHeader{}, ErrSignatureMissing
	}
	parsed := SignatureHeader{}
	hasTimestamp := false
	for _, part := range strings.Split(value, ",") {
		key, raw, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		raw = strings.TrimSpace(raw)
		switch key {
		case "t":
			timestamp, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return SignatureHeader{}, fmt.Errorf("%w: timestamp %q", ErrSignatureMalformed, raw)
			}
			parsed.Timestamp = timestamp
			hasTimestamp = true
		case "v0":
			if raw != "" {
				parsed.Signatures = append(parsed.Signatures, strings.ToLower(raw))
			}
		}
	}
	if !hasTimestamp || len(parsed.Signatures) == 0 {
		return SignatureHeader{}, ErrSignatureMalformed
	}
	return parsed, nil
}

// ComputeSignature returns hex(HMAC-SHA256(secret, "<timestamp>.<body>")).
func ComputeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a header value the verifier accepts at now.
func SignHeader(secret string, now time.Time, body []byte) string {
	timestamp := now.Unix()
	return fmt.Sprintf("t=%d,v0=%s", timestamp, ComputeSignature(secret, timestamp, body))
}

// VerifySignature never panics and fails closed on any missing input.
func VerifySignature(headers map[string]string, rawBody []byte, secret string, now time.Time) bool {
	verifier := SignatureVerifier{
		Secret: secret,
		Now:    func() time.Time { return now },
	}
	return verifier.check(headers, rawBody) == nil
}

type SignatureVerifier struct {
	Secret       string
	Header       string
	ReplayWindow time.Duration
	Now          func() time.Time
}

func NewSignatureVerifier(cfg core.WebhookConfig) (SignatureVerifier, error) {
	secret, err := core.ResolveSecret(cfg.Secret, cfg.SecretFile)
	if err != nil {
		return SignatureVerifier{}, err
	}
	return SignatureVerifier{
		Secret:       secret,
		Header:       cfg.SignatureHeader,
		ReplayWindow: cfg.ReplayWindow,
	}, nil
}

func (v SignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	return v.check(req.Headers, req.Body)
}

func (v SignatureVerifier) check(headers map[string]string, rawBody []byte) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrSignatureMalformed, recovered)
		}
	}()

	// Config loading trims secrets; the key is used here byte for byte.
	secret := v.Secret
	if strings.TrimSpace(secret) == "" {
		return ErrSecretNotConfigured
	}
	header := strings.TrimSpace(v.Header)
	if header == "" {
		header = DefaultSignatureHeader
	}
	parsed, err := ParseSignatureHeader(headerValue(headers, header))
	if err != nil {
		return err
	}

	window := v.ReplayWindow
	if window <= 0 {
		window = DefaultReplayWindow
	}
	age := v.now().Sub(time.Unix(parsed.Timestamp, 0))
	if age < 0 {
		age = -age
	}
	if age > window {
		return ErrSignatureStale
	}

	expected := []byte(ComputeSignature(secret, parsed.Timestamp, rawBody))
	for _, candidate := range parsed.Signatures {
		if hmac.Equal(expected, []byte(candidate)) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

func (v SignatureVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
