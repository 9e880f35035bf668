// Package validate implements incremental digest validation for streamed
// artifact bodies: a Validator consumes chunks as they arrive and only
// answers pass/fail once the stream ends, so the whole body never has to
// be buffered in memory.
package validate

import (
	"crypto/md5"  //nolint:gosec // upstream-advertised digest, not a security boundary
	"crypto/sha1" //nolint:gosec // upstream-advertised digest, not a security boundary
	"hash"
)

// Validator is fed chunks of a byte stream as they arrive and renders a
// verdict once the stream has ended.
type Validator interface {
	AddData(chunk []byte)
	Validate() bool
}

// Nop always accepts the stream; used when no digest header was present.
type Nop struct{}

func (Nop) AddData([]byte)  {}
func (Nop) Validate() bool { return true }

// SHA1 streams a SHA-1 hash and compares it against an expected 20-byte
// digest once the stream ends.
type SHA1 struct {
	hasher   hash.Hash
	expected [20]byte
}

// NewSHA1 returns a Validator checking the stream's SHA-1 digest against
// expected.
func NewSHA1(expected [20]byte) *SHA1 {
	return &SHA1{hasher: sha1.New(), expected: expected}
}

func (v *SHA1) AddData(chunk []byte) { v.hasher.Write(chunk) }

func (v *SHA1) Validate() bool {
	var sum [20]byte
	copy(sum[:], v.hasher.Sum(nil))
	return sum == v.expected
}

// MD5 streams an MD5 hash and compares it against an expected 16-byte
// digest once the stream ends.
type MD5 struct {
	hasher   hash.Hash
	expected [16]byte
}

// NewMD5 returns a Validator checking the stream's MD5 digest against
// expected.
func NewMD5(expected [16]byte) *MD5 {
	return &MD5{hasher: md5.New(), expected: expected}
}

func (v *MD5) AddData(chunk []byte) { v.hasher.Write(chunk) }

func (v *MD5) Validate() bool {
	var sum [16]byte
	copy(sum[:], v.hasher.Sum(nil))
	return sum == v.expected
}

// Composite aggregates several validators; it passes only if every one of
// them does.
type Composite []Validator

func (c Composite) AddData(chunk []byte) {
	for _, v := range c {
		v.AddData(chunk)
	}
}

func (c Composite) Validate() bool {
	for _, v := range c {
		if !v.Validate() {
			return false
		}
	}
	return true
}
