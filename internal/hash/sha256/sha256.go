// Package sha256 fingerprints report requests for the chunk cache.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DefaultPrefix namespaces fingerprints so they never collide with other cache users.
const DefaultPrefix = "pageview_counter_"

// Hasher computes SHA-256 digests and request fingerprints.
type Hasher struct {
	prefix string
}

// New returns a SHA-256 hasher using DefaultPrefix for fingerprints.
func New() *Hasher {
	return &Hasher{prefix: DefaultPrefix}
}

// NewWithPrefix returns a hasher that prepends prefix to fingerprints.
func NewWithPrefix(prefix string) *Hasher {
	return &Hasher{prefix: prefix}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint serializes v as JSON and returns the prefixed digest. Struct
// fields serialize in declaration order, so equal values always agree.
func (h *Hasher) Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint input: %w", err)
	}
	digest, err := h.Hash(data)
	if err != nil {
		return "", err
	}
	return h.prefix + digest, nil
}
