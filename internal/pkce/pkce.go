package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// VerifierLength is the number of characters in a generated code verifier.
// RFC 7636 requires between 43 and 128 characters; we use the minimum.
const VerifierLength = 43

// Alphabet is the character set used for verifiers and state values.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Method identifies how the challenge was derived from the verifier.
type Method string

const (
	// MethodS256 means the challenge is base64(SHA-256(verifier)).
	MethodS256 Method = "S256"
	// MethodPlain means the challenge equals the verifier.
	MethodPlain Method = "plain"
)

// Strength reports whether the digest capability was available when the
// pair was produced. Callers that care about downgrade attacks can assert
// on it instead of string-matching the challenge method.
type Strength int

const (
	// Weak means the digest capability was unavailable and the pair fell
	// back to the plain method.
	Weak Strength = iota
	// Strong means the challenge was derived with SHA-256.
	Strong
)

func (s Strength) String() string {
	if s == Strong {
		return "strong"
	}
	return "weak"
}

// Pair is a PKCE verifier/challenge pair.
type Pair struct {
	Verifier  string
	Challenge string
	Method    Method
}

// DigestFunc computes a SHA-256 digest of the input. It is injected so
// tests and degraded environments can substitute or disable it.
type DigestFunc func(data []byte) ([]byte, error)

// SHA256 is the default DigestFunc.
func SHA256(data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

// Generator produces PKCE pairs from an injected random source and digest
// capability.
type Generator struct {
	rand   io.Reader
	digest DigestFunc
}

// NewGenerator creates a Generator. A nil rand falls back to crypto/rand,
// a nil digest disables S256 and forces the plain method.
func NewGenerator(random io.Reader, digest DigestFunc) *Generator {
	if random == nil {
		random = rand.Reader
	}
	return &Generator{rand: random, digest: digest}
}

// Default returns a Generator backed by crypto/rand and SHA-256.
func Default() *Generator {
	return NewGenerator(rand.Reader, SHA256)
}

// New produces a fresh verifier/challenge pair. The only possible error is
// a failing random source; digest unavailability is not an error, it
// downgrades the pair to the plain method.
func (g *Generator) New() (Pair, Strength, error) {
	verifier, err := RandomString(g.rand, VerifierLength)
	if err != nil {
		return Pair{}, Weak, fmt.Errorf("generating code verifier: %w", err)
	}
	pair, strength := g.FromStored(verifier)
	return pair, strength, nil
}

// FromStored re-derives the challenge for an already-known verifier, using
// the same digest-or-fallback logic as New. It is deterministic for a
// given verifier and digest capability.
func (g *Generator) FromStored(verifier string) (Pair, Strength) {
	pair := Pair{
		Verifier:  verifier,
		Challenge: verifier,
		Method:    MethodPlain,
	}
	if g.digest == nil {
		return pair, Weak
	}
	sum, err := g.digest([]byte(verifier))
	if err != nil {
		// Expected environment limitation, not a fault.
		return pair, Weak
	}
	pair.Challenge = base64.StdEncoding.EncodeToString(sum)
	pair.Method = MethodS256
	return pair, Strong
}

// RandomString draws n characters uniformly from Alphabet using the given
// random source.
func RandomString(random io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid length %d", n)
	}
	// 248 is the largest multiple of len(Alphabet) that fits in a byte;
	// bytes at or above it are rejected to keep the draw uniform.
	const limit = 248

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
