// Package hashutil implements canonical JSON serialization and the SHA-1
// content-addressing used for file blobs, task identity, and template
// fragments throughout the engine.
package hashutil

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // content addressing, not authentication
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"go.trai.ch/zerr"
)

// Hash is a 40-hex-character SHA-1 digest used as identity for files,
// tasks, and template fragments.
type Hash string

var hexPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// ErrInvalidHash is returned when a string does not look like a hash.
var ErrInvalidHash = zerr.New("invalid hash")

// ParseHash validates and wraps a 40-hex-character string as a Hash.
func ParseHash(s string) (Hash, error) {
	if !hexPattern.MatchString(s) {
		return "", zerr.With(ErrInvalidHash, "value", s)
	}
	return Hash(s), nil
}

// String returns the hex representation of the hash.
func (h Hash) String() string { return string(h) }

// IsZero reports whether the hash is the empty value.
func (h Hash) IsZero() bool { return h == "" }

// ShardPath returns the "<first-2-hex>/<remaining-38-hex>" split used by
// the file store's on-disk layout.
func (h Hash) ShardPath() (dir, rest string) {
	s := string(h)
	if len(s) != 40 {
		return "", s
	}
	return s[:2], s[2:]
}

// Digest computes the SHA-1 digest of b, lowercase hex encoded.
func Digest(b []byte) Hash {
	sum := sha1.Sum(b) //nolint:gosec // content addressing, not authentication
	return Hash(hex.EncodeToString(sum[:]))
}

// CanonicalJSON serializes v with sorted object keys and no insignificant
// whitespace, so that structurally equal values always produce byte-identical
// output. Go's encoding/json emits numbers in shortest round-trip form,
// writes strings as UTF-8 (escaping only <, >, &, U+2028, U+2029 and
// invalid UTF-8) and sorts map keys, but writes struct fields in
// declaration order; so the marshalled value is decoded into generic maps
// (numbers kept as their original literals) and marshalled again, which
// sorts the keys of every object, struct-derived ones included.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, zerr.Wrap(err, "canonical json: marshal")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, zerr.Wrap(err, "canonical json: normalize")
	}
	sorted, err := json.Marshal(generic)
	if err != nil {
		return nil, zerr.Wrap(err, "canonical json: marshal")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, sorted); err != nil {
		return nil, zerr.Wrap(err, "canonical json: compact")
	}
	return buf.Bytes(), nil
}

// HashBytes is the content hash of an immutable file blob: SHA-1 over the
// raw bytes, independent of canonical JSON.
func HashBytes(b []byte) Hash {
	return Digest(b)
}

// HashTask computes a task's identity: the SHA-1 of the canonical JSON array
// `[fullyQualifiedRuleName, argHashes...]`. Equal rule name and ordered
// argument hashes always yield the same identity (spec invariant 1).
func HashTask(ruleName string, argHashes []Hash) (Hash, error) {
	parts := make([]any, 0, len(argHashes)+1)
	parts = append(parts, ruleName)
	for _, h := range argHashes {
		parts = append(parts, string(h))
	}
	b, err := CanonicalJSON(parts)
	if err != nil {
		return "", err
	}
	return Digest(b), nil
}

// HashTemplate computes a Template future's identity: the SHA-1 of the
// literal prefix "{}" followed by its canonical JSON representation.
func HashTemplate(canonical []byte) Hash {
	return Digest(append([]byte("{}"), canonical...))
}

// HashIndexor computes an Indexor future's identity: the SHA-1 of
// "@" + targetHash + "/" + joined keys.
func HashIndexor(target Hash, keys []string) Hash {
	id := "@" + string(target) + "/" + joinKeys(keys)
	return Digest([]byte(id))
}

func joinKeys(keys []string) string {
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.WriteString(k)
	}
	return buf.String()
}

// SortedKeys returns the keys of m in lexicographic order. It is a small
// helper used by callers that need deterministic iteration before hashing
// or serializing a map (mirrors the sort-then-hash idiom used throughout
// the engine's hashing paths).
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MustParseHash is ParseHash but panics on error; reserved for tests and
// compile-time-known constants.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(fmt.Sprintf("hashutil: %v", err))
	}
	return h
}
