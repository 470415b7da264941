// Package signature validates HMAC-SHA256 request signatures keyed by the tenant's active secret.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"

	"tenantgate/pkg/problems"
	"tenantgate/pkg/replay"
)

// Generate returns the hex HMAC-SHA256 of body under secret.
func Generate(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Payload is the canonical signed byte string: timestamp || nonce || body.
func Payload(timestamp, nonce string, body []byte) []byte {
	out := make([]byte, 0, len(timestamp)+len(nonce)+len(body))
	out = append(out, timestamp...)
	out = append(out, nonce...)
	return append(out, body...)
}

// Sign is what a client does: Generate over Payload.
func Sign(timestamp, nonce string, body []byte, secret string) string {
	return Generate(Payload(timestamp, nonce, body), secret)
}

// SecretSource resolves a tenant's active signing secret (secrets.Manager).
type SecretSource interface {
	ActiveSecret(ctx context.Context, tenantID string) (string, error)
}

type Validator struct {
	guard   *replay.Guard
	secrets SecretSource
	log     *zap.SugaredLogger
}

func NewValidator(guard *replay.Guard, secrets SecretSource, log *zap.SugaredLogger) *Validator {
	return &Validator{guard: guard, secrets: secrets, log: log}
}

// ValidateEnhanced runs, in order: timestamp skew, nonce check-and-record, secret lookup,
// recomputation over the canonical payload, constant-time comparison.
// A nonce is consumed even when the signature then fails to match.
func (v *Validator) ValidateEnhanced(ctx context.Context, body []byte, sig, tenantID, timestamp, nonce string) error {
	if sig == "" || timestamp == "" || nonce == "" {
		return problems.New(problems.InvalidSignature, "signature, timestamp and nonce are required")
	}
	if _, err := v.guard.CheckTimestamp(timestamp); err != nil {
		return err
	}
	if err := v.guard.Record(ctx, tenantID, nonce); err != nil {
		return err
	}
	secret, err := v.secrets.ActiveSecret(ctx, tenantID)
	if err != nil {
		return err
	}
	expected := Sign(timestamp, nonce, body, secret)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(sig))), []byte(expected)) != 1 {
		v.log.Infow("signature mismatch", "tenantId", tenantID)
		return problems.New(problems.InvalidSignature, "signature mismatch")
	}
	return nil
}
