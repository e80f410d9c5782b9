package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"nametagauth-go/internal/pkce"
)

// StateLength is the number of characters in a generated state value.
const StateLength = 20

// VerifierKeyPrefix namespaces code-verifier entries in the session store.
const VerifierKeyPrefix = "__nametag_code_verifier_"

// NewState generates a random state value used to correlate an authorize
// attempt with its callback. A nil random source falls back to crypto/rand.
func NewState(random io.Reader) (string, error) {
	if random == nil {
		random = rand.Reader
	}
	state, err := pkce.RandomString(random, StateLength)
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return state, nil
}

// StorageKeyFor derives the session-store key holding the code verifier
// for the given state. The key is bound to a one-way hash of the state so
// concurrent authorize attempts (for example, across tabs) never clobber
// each other's verifiers, while a reload of the same attempt finds its
// verifier again.
func StorageKeyFor(state string) string {
	sum := sha256.Sum256([]byte(state))
	return VerifierKeyPrefix + base64.StdEncoding.EncodeToString(sum[:])
}
