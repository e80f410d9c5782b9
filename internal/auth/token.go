package auth

import (
	"encoding/json"
	"errors"

	"nametagauth-go/internal/store"
)

// Token is the session credential returned by a successful exchange. It
// is immutable once issued; absent fields keep their zero values.
type Token struct {
	IDToken             string `json:"id_token"`
	AccessToken         string `json:"access_token"`
	RefreshToken        string `json:"refresh_token"`
	Scope               string `json:"scope"`
	ExpiresIn           int64  `json:"expires_in"`
	TokenType           string `json:"token_type"`
	Subject             string `json:"subject"`
	FirebaseCustomToken string `json:"firebase_custom_token,omitempty"`
}

// Token returns the stored session token, or nil when there is no
// session. Malformed stored data is treated identically to absence; the
// session check never fails on bad bytes.
func (a *Auth) Token() (*Token, error) {
	if !a.opts.PKCE {
		return nil, ErrPKCEDisabled
	}
	return a.readToken(), nil
}

// SignedIn reports whether a session token is present.
func (a *Auth) SignedIn() (bool, error) {
	tok, err := a.Token()
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

// SignOut removes the session token. Signing out twice is harmless.
func (a *Auth) SignOut() error {
	if !a.opts.PKCE {
		return ErrPKCEDisabled
	}

	a.writeMu.Lock()
	a.mu.Lock()
	a.generation++
	a.mu.Unlock()

	hadToken := false
	if _, err := a.longTerm.Get(TokenKey); err == nil {
		hadToken = true
	}
	err := a.longTerm.Remove(TokenKey)
	a.writeMu.Unlock()
	if err != nil {
		return err
	}
	if hadToken {
		a.broadcastOwnWrite(nil)
	}
	return nil
}

// readToken loads and deserializes the stored token, mapping absence and
// malformed data to nil.
func (a *Auth) readToken() *Token {
	raw, err := a.longTerm.Get(TokenKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Printf("reading stored token: %v", err)
		}
		return nil
	}
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		a.logger.Printf("stored token is malformed, treating as signed out")
		return nil
	}
	return &tok
}

// writeToken persists tok under TokenKey, but only if generation still
// matches: a stale exchange completing after a sign-out must have its
// result discarded, not applied.
func (a *Auth) writeToken(tok *Token, generation uint64) (bool, error) {
	raw, err := json.Marshal(tok)
	if err != nil {
		return false, err
	}

	// The generation check and the store write must be inseparable from
	// SignOut's increment-and-remove; writeMu covers both. a.mu cannot
	// guard the write itself: a Notifier store delivers the change
	// callback synchronously into onStoreChange, which takes a.mu.
	a.writeMu.Lock()
	if a.currentGeneration() != generation {
		a.writeMu.Unlock()
		a.logger.Printf("discarding stale token for superseded session")
		return false, nil
	}
	err = a.longTerm.Set(TokenKey, string(raw))
	a.writeMu.Unlock()
	if err != nil {
		return false, err
	}
	a.broadcastOwnWrite(tok)
	return true, nil
}
