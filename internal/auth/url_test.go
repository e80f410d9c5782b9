package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nametagauth-go/internal/pkce"
	"nametagauth-go/internal/session"
	"nametagauth-go/internal/store"
)

func TestAuthorizeURL_RequiresScopes(t *testing.T) {
	a, _ := newEngine(t, func(opts *Options, _ *Deps) {
		opts.Scopes = nil
	})
	_, err := a.AuthorizeURL(ModePage)
	assert.ErrorIs(t, err, ErrNoScopes)
}

func TestAuthorizeURL_PageMode(t *testing.T) {
	a, _ := newEngine(t, func(opts *Options, _ *Deps) {
		opts.Scopes = []string{"nt:email", "nt:name"}
		opts.PKCE = false
	})

	raw, err := a.AuthorizeURL(ModePage)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, testRedirect, q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "nt:email nt:name", q.Get("scope"))
	assert.Equal(t, "test-client", q.Get("return"))
	assert.Len(t, q.Get("state"), session.StateLength)

	// Without PKCE no challenge material leaves the engine.
	assert.Empty(t, q.Get("code_challenge"))
	assert.Empty(t, q.Get("code_challenge_method"))
	assert.Empty(t, q.Get("response_mode"))
}

func TestAuthorizeURL_IframeMode(t *testing.T) {
	a, _ := newEngine(t, nil)

	raw, err := a.AuthorizeURL(ModeIframe)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/authorize/iframe", u.Path)
}

func TestAuthorizeURL_PKCEChallenge(t *testing.T) {
	a, _ := newEngine(t, nil)

	raw, err := a.AuthorizeURL(ModePage)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "fragment", q.Get("response_mode"))
	assert.Equal(t, string(pkce.MethodS256), q.Get("code_challenge_method"))

	state := q.Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, state, a.State())

	// The stored verifier must hash to the advertised challenge; the
	// verifier itself never appears in the URL.
	verifier, err := a.sessions.Get(session.StorageKeyFor(state))
	require.NoError(t, err)
	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))
	assert.NotContains(t, raw, verifier)
}

func TestAuthorizeURL_ReusesStoredVerifier(t *testing.T) {
	a, _ := newEngine(t, nil)

	first, err := a.AuthorizeURL(ModePage)
	require.NoError(t, err)
	second, err := a.AuthorizeURL(ModeIframe)
	require.NoError(t, err)

	fq, err := url.Parse(first)
	require.NoError(t, err)
	sq, err := url.Parse(second)
	require.NoError(t, err)

	// A retried attempt for the same state keeps the same challenge, so a
	// frame recreated mid-flow stays compatible with the stored verifier.
	assert.Equal(t, fq.Query().Get("state"), sq.Query().Get("state"))
	assert.Equal(t, fq.Query().Get("code_challenge"), sq.Query().Get("code_challenge"))
}

func TestAuthorizeURL_FixedState(t *testing.T) {
	a, _ := newEngine(t, func(opts *Options, _ *Deps) {
		opts.State = testState
	})

	raw, err := a.AuthorizeURL(ModePage)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, testState, u.Query().Get("state"))
}

func TestAuthorizeURL_SessionTTL(t *testing.T) {
	sessionKV := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newEngine(t, func(opts *Options, deps *Deps) {
		opts.SessionTTL = time.Hour
		deps.Session = sessionKV
		deps.Now = func() time.Time { return now }
	})

	raw, err := a.AuthorizeURL(ModePage)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)

	// The verifier's expiry sibling reflects the configured TTL, not the
	// default.
	key := session.StorageKeyFor(u.Query().Get("state"))
	deadline, err := sessionKV.Get(key + store.ExpiresSuffix)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(now.Add(time.Hour).UnixMilli(), 10), deadline)
}

func TestAuthorizeURL_PlainFallback(t *testing.T) {
	a, _ := newEngine(t, func(_ *Options, deps *Deps) {
		deps.Digest = func([]byte) ([]byte, error) {
			return nil, errors.New("digest unavailable")
		}
	})

	raw, err := a.AuthorizeURL(ModePage)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, string(pkce.MethodPlain), q.Get("code_challenge_method"))

	verifier, err := a.sessions.Get(session.StorageKeyFor(q.Get("state")))
	require.NoError(t, err)
	assert.Equal(t, verifier, q.Get("code_challenge"))
}
