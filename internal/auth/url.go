package auth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"nametagauth-go/internal/metrics"
	"nametagauth-go/internal/pkce"
	"nametagauth-go/internal/session"
	"nametagauth-go/internal/store"
)

// Mode selects which authorize endpoint the URL targets.
type Mode int

const (
	// ModePage is a full-page navigation to /authorize.
	ModePage Mode = iota
	// ModeIframe is the embedded polling variant at /authorize/iframe.
	ModeIframe
)

// AuthorizeURL assembles the outbound authorization request. In PKCE mode
// it provisions (or reuses) the verifier for the current state, persists
// it with a TTL, and advertises only the derived challenge; the verifier
// never appears in the URL.
func (a *Auth) AuthorizeURL(mode Mode) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.opts.Scopes) == 0 {
		return "", ErrNoScopes
	}

	if a.state == "" {
		state, err := session.NewState(a.random)
		if err != nil {
			return "", err
		}
		a.state = state
	}

	path := "/authorize"
	if mode == ModeIframe {
		path = "/authorize/iframe"
	}

	conf := oauth2.Config{
		ClientID:    a.opts.ClientID,
		RedirectURL: a.opts.RedirectURI,
		Scopes:      a.opts.Scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: a.server + path},
	}

	params := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("return", a.page.ReturnHint()),
	}

	if a.opts.PKCE {
		pair, err := a.provisionVerifierLocked()
		if err != nil {
			return "", err
		}
		params = append(params,
			oauth2.SetAuthURLParam("response_mode", "fragment"),
			oauth2.SetAuthURLParam("code_challenge", pair.Challenge),
			oauth2.SetAuthURLParam("code_challenge_method", string(pair.Method)),
		)
	}

	return conf.AuthCodeURL(a.state, params...), nil
}

// provisionVerifierLocked reuses the verifier stored for the current
// state when one exists (an interrupted or retried attempt), generating a
// fresh one otherwise, and (re)persists it under TTL. Caller holds a.mu.
func (a *Auth) provisionVerifierLocked() (pkce.Pair, error) {
	// Lazy eviction: reap stale attempts before adding a new one.
	if removed, err := a.sessions.Vacuum(); err != nil {
		a.logger.Printf("vacuum before verifier write: %v", err)
	} else if removed > 0 {
		metrics.VacuumRemoved.Add(float64(removed))
	}

	key := session.StorageKeyFor(a.state)

	var pair pkce.Pair
	var strength pkce.Strength
	stored, err := a.sessions.Get(key)
	switch {
	case err == nil:
		pair, strength = a.pkce.FromStored(stored)
	case errors.Is(err, store.ErrNotFound):
		pair, strength, err = a.pkce.New()
		if err != nil {
			return pkce.Pair{}, err
		}
	default:
		return pkce.Pair{}, fmt.Errorf("reading stored verifier: %w", err)
	}

	if strength == pkce.Weak {
		a.logger.Printf("[%s] digest capability unavailable, using plain challenge method", a.state)
	}

	if err := a.sessions.SetWithTTL(key, pair.Verifier, a.sessionTTL); err != nil {
		return pkce.Pair{}, fmt.Errorf("persisting verifier: %w", err)
	}
	return pair, nil
}
