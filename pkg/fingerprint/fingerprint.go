// Package fingerprint builds deterministic hashes for candidate queries
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Generate creates a deterministic fingerprint for arbitrary data.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// CandidateQuery fingerprints a candidate pre-fetch so equal queries share a cache key.
// Make order and case do not affect the result.
func CandidateQuery(tenantID string, makes []string, minYear, maxYear int) string {
	normalized := make([]any, 0, len(makes))
	sorted := make([]string, 0, len(makes))
	for _, m := range makes {
		sorted = append(sorted, normalizers.NormalizeMake(m))
	}
	sort.Strings(sorted)
	for _, m := range sorted {
		normalized = append(normalized, m)
	}

	return Generate(map[string]any{
		"tenant_id": tenantID,
		"makes":     normalized,
		"min_year":  minYear,
		"max_year":  maxYear,
	})
}

// canonicalize creates a deterministic string representation of a value
// by sorting map keys and recursively processing nested structures
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteString(":")
			b.WriteString(canonicalize(v[k]))
		}
		b.WriteString("}")
		return b.String()
	case []any:
		var b strings.Builder
		b.WriteString("[")
		for i, item := range v {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(canonicalize(item))
		}
		b.WriteString("]")
		return b.String()
	default:
		// For primitives, use JSON encoding
		out, _ := json.Marshal(v)
		return string(out)
	}
}
