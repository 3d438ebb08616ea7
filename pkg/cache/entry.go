package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Entry is one cached upstream payload.
type Entry struct {
	// Fingerprint is the cache key, see Fingerprint.
	Fingerprint string `json:"fingerprint"`

	// Capability is the capability the payload answers.
	Capability string `json:"capability"`

	// Payload is the raw upstream JSON.
	Payload json.RawMessage `json:"payload"`

	// FetchedAt is when the payload was received from the upstream.
	FetchedAt time.Time `json:"fetched_at"`

	// TTL is how long the entry is fresh.
	TTL time.Duration `json:"ttl"`

	// Source is the provider the payload came from.
	Source string `json:"source"`

	// RetainUntil is when the entry stops being usable even as stale data.
	RetainUntil time.Time `json:"retain_until"`
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.FetchedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Fresh reports whether the entry is within its TTL at now.
func (e *Entry) Fresh(now time.Time) bool {
	return e.Age(now) <= e.TTL
}

// Expired reports whether the entry is past retention at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.RetainUntil.IsZero() && now.After(e.RetainUntil)
}

// Fingerprint returns the cache key for a capability and its parameters.
//
// Parameter names are lower-cased and trimmed, values are trimmed and empty
// values dropped, so the key does not depend on ordering, case of names or
// stray whitespace. Values stay case-sensitive. Names that collide after
// folding must be rejected by the caller.
func Fingerprint(capability string, params map[string]string) string {
	canonical := make(map[string]string, len(params))
	for k, v := range params {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		canonical[k] = v
	}

	// encoding/json writes map keys in sorted order.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return strings.ToLower(strings.TrimSpace(capability)) + ":" + hex.EncodeToString(sum[:])
}
