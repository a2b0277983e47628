// Package contenthash computes the stable fingerprint over an ordered txid
// list used as a validity tag for cached subjects: a hash
// mismatch between what is loaded and what is recorded in metadata is
// authoritative evidence of drift, not a security property.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash returns SHA-256(canonical-json(order)) as a lowercase hex string.
// order is encoded as a plain JSON array of strings; since it contains no
// objects there is no key-ordering ambiguity for encoding/json to resolve,
// so the standard encoder already produces a canonical form.
func Hash(order []string) (string, error) {
	// encode an explicit (possibly empty, never nil) slice so an empty
	// subject hashes to "[]" rather than "null".
	if order == nil {
		order = []string{}
	}
	b, err := json.Marshal(order)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash panics on encoding failure; useful where order is already known
// to be valid UTF-8 strings (always true for txids).
func MustHash(order []string) string {
	h, err := Hash(order)
	if err != nil {
		panic(err)
	}
	return h
}
