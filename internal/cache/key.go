package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key fingerprints one pipeline input: the raw content bytes tagged with the
// target environment and processing mode. Identical inputs always produce
// the identical key; no canonicalization happens beyond raw-byte hashing.
type Key struct {
	Digest      string
	Environment string
	Fast        bool
}

// NewKey hashes the content and tags it. Empty content is a valid input and
// yields a stable key of its own.
func NewKey(content []byte, environment string, fast bool) Key {
	sum := sha256.Sum256(content)
	return Key{
		Digest:      hex.EncodeToString(sum[:]),
		Environment: strings.ToLower(strings.TrimSpace(environment)),
		Fast:        fast,
	}
}

// String renders the key in its canonical form.
func (k Key) String() string {
	mode := "full"
	if k.Fast {
		mode = "fast"
	}
	return fmt.Sprintf("%s:%s:%s", k.Digest, k.Environment, mode)
}

// Stage derives the cache key for one stage's result under this input.
func (k Key) Stage(stage string) string {
	return k.String() + ":" + stage
}
