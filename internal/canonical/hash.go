package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash domains. The version suffix allows the canonical form to change
// without colliding with earlier hashes.
const (
	DomainProblem  = "adrfem/problem/v1"
	DomainSnapshot = "adrfem/snapshot/v1"
)

// Hash returns the hex SHA-256 of domain || 0x00 || data.
func Hash(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashValue hashes the canonical encoding of v.
func HashValue(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical: %s: %w", domain, err)
	}
	return Hash(domain, data), nil
}

// SnapshotHash identifies the nodal values u at time t.
func SnapshotHash(t float64, u []float64) (string, error) {
	return HashValue(DomainSnapshot, map[string]any{"t": t, "u": u})
}
