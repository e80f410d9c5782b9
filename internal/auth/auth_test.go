package auth

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "client-123"
	testRedirect = "https://app.example/callback"
	testState    = "teststate12345678901"
)

// fakePage is an in-memory hosting context.
type fakePage struct {
	mu       sync.Mutex
	origin   string
	fragment string
	hint     string
	visited  []string
}

func (p *fakePage) Origin() string { return p.origin }

func (p *fakePage) Fragment() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fragment
}

func (p *fakePage) Navigate(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, url)
}

func (p *fakePage) ReturnHint() string { return p.hint }

func (p *fakePage) setFragment(frag string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fragment = frag
}

func (p *fakePage) navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// newEngine builds an engine with quiet defaults, letting the test adjust
// options and collaborators before construction.
func newEngine(t *testing.T, mutate func(*Options, *Deps)) (*Auth, *fakePage) {
	t.Helper()
	page := &fakePage{origin: "https://app.example", hint: "test-client"}
	opts := Options{
		ClientID:    testClientID,
		RedirectURI: testRedirect,
		Scopes:      []string{"nt:email"},
		PKCE:        true,
	}
	deps := Deps{
		Page:   page,
		Logger: log.New(io.Discard, "", 0),
	}
	if mutate != nil {
		mutate(&opts, &deps)
	}
	a, err := New(opts, deps)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, page
}

// flushLoop waits until every callback posted so far has run.
func flushLoop(t *testing.T, a *Auth) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, a.loop.Post(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch loop did not drain")
	}
}

func TestNew_Validation(t *testing.T) {
	page := &fakePage{origin: "https://app.example"}

	tests := []struct {
		name string
		opts Options
		deps Deps
	}{
		{
			name: "missing client ID",
			opts: Options{RedirectURI: testRedirect},
			deps: Deps{Page: page},
		},
		{
			name: "missing redirect URI",
			opts: Options{ClientID: testClientID},
			deps: Deps{Page: page},
		},
		{
			name: "redirect URI not a URL",
			opts: Options{ClientID: testClientID, RedirectURI: "not a url"},
			deps: Deps{Page: page},
		},
		{
			name: "server not a URL",
			opts: Options{ClientID: testClientID, RedirectURI: testRedirect, Server: "::bad::"},
			deps: Deps{Page: page},
		},
		{
			name: "session ttl too short",
			opts: Options{ClientID: testClientID, RedirectURI: testRedirect, SessionTTL: time.Second},
			deps: Deps{Page: page},
		},
		{
			name: "missing page",
			opts: Options{ClientID: testClientID, RedirectURI: testRedirect},
			deps: Deps{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts, tc.deps)
			assert.Error(t, err)
		})
	}
}

func TestNew_DefaultServer(t *testing.T) {
	a, _ := newEngine(t, nil)
	assert.Equal(t, DefaultServer, a.Server())
}

func TestNew_TrimsServerSlash(t *testing.T) {
	a, _ := newEngine(t, func(opts *Options, _ *Deps) {
		opts.Server = "https://id.example/"
	})
	assert.Equal(t, "https://id.example", a.Server())
}

func TestServerOrigin(t *testing.T) {
	a, _ := newEngine(t, func(opts *Options, _ *Deps) {
		opts.Server = "https://id.example/base"
	})
	assert.Equal(t, "https://id.example", a.ServerOrigin())
}

func TestValidatePageOrigin(t *testing.T) {
	tests := []struct {
		name       string
		pageOrigin string
		redirect   string
		wantErr    error
	}{
		{
			name:       "matching https origin",
			pageOrigin: "https://app.example",
			redirect:   "https://app.example/callback",
		},
		{
			name:       "localhost without tls",
			pageOrigin: "http://localhost:3000",
			redirect:   "http://localhost:3000/callback",
		},
		{
			name:       "loopback address",
			pageOrigin: "http://127.0.0.1:3000",
			redirect:   "http://127.0.0.1:3000/callback",
		},
		{
			name:       "origin mismatch",
			pageOrigin: "https://other.example",
			redirect:   "https://app.example/callback",
			wantErr:    ErrOriginMismatch,
		},
		{
			name:       "insecure non-local origin",
			pageOrigin: "http://app.example",
			redirect:   "http://app.example/callback",
			wantErr:    ErrInsecureOrigin,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newEngine(t, func(opts *Options, deps *Deps) {
				opts.RedirectURI = tc.redirect
				deps.Page = &fakePage{origin: tc.pageOrigin}
			})
			err := a.validatePageOrigin()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPKCEDisabledOperations(t *testing.T) {
	a, _ := newEngine(t, func(opts *Options, _ *Deps) {
		opts.PKCE = false
	})

	_, err := a.Token()
	assert.ErrorIs(t, err, ErrPKCEDisabled)

	_, err = a.SignedIn()
	assert.ErrorIs(t, err, ErrPKCEDisabled)

	assert.ErrorIs(t, a.SignOut(), ErrPKCEDisabled)

	_, err = a.ExchangeCode(context.Background(), "code")
	assert.ErrorIs(t, err, ErrPKCEDisabled)

	_, err = a.HandleCallback(context.Background())
	assert.ErrorIs(t, err, ErrPKCEDisabled)

	_, err = a.WatchToken(func(*Token) {})
	assert.ErrorIs(t, err, ErrPKCEDisabled)
}
