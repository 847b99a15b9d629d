package internal

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewDeviceID returns a fresh opaque identifier for a login's device lineage.
func NewDeviceID() string {
	return uuid.NewString()
}

// Fingerprint returns a short, non-reversible label for a secret value so it can
// appear in logs and audit events without disclosing the value itself.
func Fingerprint(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:6])
}
