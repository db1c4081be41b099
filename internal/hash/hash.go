// Package hash fingerprints file states for change and replay detection.
//
// A file state is its committed content plus its pending content, if any.
// The session keeps these fingerprints to recognize events it has already
// applied when a reconnect replays a backlog.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// noPending separates "no pending content" from an empty pending string.
const noPending = "\x00absent"

// Hasher provides an abstraction for state fingerprinting.
type Hasher interface {
	// HashState returns the fingerprint of a committed/pending content pair.
	HashState(content string, pending *string) string
}

// SHA256Hasher implements Hasher using SHA-256.
type SHA256Hasher struct{}

// NewSHA256Hasher creates a new SHA256Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// HashState returns the hex-encoded SHA-256 of the state.
func (h *SHA256Hasher) HashState(content string, pending *string) string {
	return HashString(stateKey(content, pending))
}

// HashString returns the hex-encoded SHA-256 of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func stateKey(content string, pending *string) string {
	p := noPending
	if pending != nil {
		p = "\x01" + *pending
	}
	return content + "\x00" + p
}

// FakeHasher implements Hasher by returning the raw state key, which keeps
// test failures readable.
type FakeHasher struct{}

// NewFakeHasher creates a new FakeHasher.
func NewFakeHasher() *FakeHasher {
	return &FakeHasher{}
}

// HashState returns the unhashed state key.
func (h *FakeHasher) HashState(content string, pending *string) string {
	return stateKey(content, pending)
}
