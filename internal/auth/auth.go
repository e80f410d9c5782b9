package auth

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"nametagauth-go/internal/loop"
	"nametagauth-go/internal/pkce"
	"nametagauth-go/internal/store"
)

// DefaultServer is the authorization server used when none is configured.
const DefaultServer = "https://nametag.co"

// TokenKey is the long-term store key holding the serialized session
// token. The engine exclusively owns reads and writes of this key.
const TokenKey = "__nametag_id_token"

var (
	// ErrPKCEDisabled is returned when a PKCE-only operation is invoked
	// with PKCE mode off.
	ErrPKCEDisabled = errors.New("operation requires pkce mode")
	// ErrNoScopes is returned when an authorize URL is requested without
	// any scopes configured.
	ErrNoScopes = errors.New("at least one scope is required")
	// ErrOriginMismatch is returned when the in-page polling flow is
	// started from a page whose origin differs from the redirect URI's.
	ErrOriginMismatch = errors.New("redirect_uri origin must equal the current page's origin")
	// ErrInsecureOrigin is returned when the in-page polling flow is
	// started from a page that is neither https nor localhost.
	ErrInsecureOrigin = errors.New("page origin must be https or localhost")
)

// Page abstracts the hosting context: where the engine is running, the
// callback fragment it can currently see, and the navigation primitive
// used for the final hand-off. All of it is injected so the engine is
// constructible without a real browser.
type Page interface {
	// Origin is the origin of the hosting page, e.g. "https://app.example".
	Origin() string
	// Fragment is the current URL fragment without the leading "#".
	Fragment() string
	// Navigate replaces the top-level location.
	Navigate(url string)
	// ReturnHint describes the client environment for the authorize
	// request; the server uses it to tailor its response page.
	ReturnHint() string
}

// Options configures an Auth engine.
type Options struct {
	// ClientID is the OAuth 2.0 client ID of the relying application.
	ClientID string `validate:"required"`
	// RedirectURI is the absolute URL the browser is sent to when
	// authentication completes.
	RedirectURI string `validate:"required,url"`
	// Scopes are the requested permission strings. Required before any
	// authorize URL can be built.
	Scopes []string
	// Server overrides the authorization server base URL.
	Server string `validate:"omitempty,url"`
	// PKCE enables the local session: verifier storage, token exchange
	// and the session API. When false those operations fail fast.
	PKCE bool
	// State seeds the attempt correlation value. Generated when empty.
	State string
	// SessionTTL is how long stored code verifiers stay fresh. Zero means
	// store.DefaultTTL.
	SessionTTL time.Duration `validate:"omitempty,min=1m"`
}

// Deps are the injected collaborators. Any nil field falls back to a
// production default.
type Deps struct {
	// Page is the hosting context. Required.
	Page Page
	// LongTerm holds the session token; shared across tabs/processes.
	LongTerm store.KV
	// Session holds per-attempt code verifiers under TTL.
	Session store.KV
	// HTTPClient performs the token and properties round trips.
	HTTPClient *http.Client
	// Logger receives diagnostics.
	Logger *log.Logger
	// Random is the randomness source for state and verifiers.
	Random io.Reader
	// Digest is the SHA-256 capability; nil downgrades PKCE to plain.
	Digest pkce.DigestFunc
	// Now is the clock used for TTL deadlines.
	Now func() time.Time
	// Loop serializes asynchronous callback delivery.
	Loop *loop.Loop
}

// Auth implements the client side of the authorization-code flow with
// PKCE against one authorization server. One live instance per session.
type Auth struct {
	mu   sync.Mutex
	opts Options

	// writeMu serializes token writes against sign-outs, so the
	// generation check and the store mutation cannot interleave. It is
	// never held while a.mu callbacks can run, see writeToken.
	writeMu sync.Mutex

	server     string
	state      string
	generation uint64

	page       Page
	httpClient *http.Client
	logger     *log.Logger
	random     io.Reader
	pkce       *pkce.Generator
	longTerm   store.KV
	sessions   *store.TTLStore
	sessionTTL time.Duration
	loop       *loop.Loop
	ownLoop    bool

	watches     map[string]WatchFunc
	storeCancel func()
}

// New validates opts, fills in defaults for absent collaborators, and
// returns a ready engine.
func New(opts Options, deps Deps) (*Auth, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("validating options: %w", err)
	}
	if deps.Page == nil {
		return nil, errors.New("a Page collaborator is required")
	}

	server := strings.TrimRight(opts.Server, "/")
	if server == "" {
		server = DefaultServer
	}
	if deps.LongTerm == nil {
		deps.LongTerm = store.NewMemoryStore()
	}
	if deps.Session == nil {
		deps.Session = store.NewMemoryStore()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Logger == nil {
		deps.Logger = log.New(os.Stdout, "nametagauth: ", log.LstdFlags)
	}
	if deps.Digest == nil {
		deps.Digest = pkce.SHA256
	}
	sessionTTL := opts.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = store.DefaultTTL
	}

	ownLoop := deps.Loop == nil
	if ownLoop {
		deps.Loop = loop.New()
		deps.Loop.Start()
	}

	a := &Auth{
		opts:       opts,
		server:     server,
		state:      opts.State,
		page:       deps.Page,
		httpClient: deps.HTTPClient,
		logger:     deps.Logger,
		random:     deps.Random,
		pkce:       pkce.NewGenerator(deps.Random, deps.Digest),
		longTerm:   deps.LongTerm,
		sessions:   store.NewTTLStore(deps.Session, deps.Now, deps.Logger),
		sessionTTL: sessionTTL,
		loop:       deps.Loop,
		ownLoop:    ownLoop,
		watches:    make(map[string]WatchFunc),
	}
	return a, nil
}

// Close detaches store listeners and, when the engine owns its dispatch
// loop, stops it.
func (a *Auth) Close() {
	a.mu.Lock()
	if a.storeCancel != nil {
		a.storeCancel()
		a.storeCancel = nil
	}
	a.watches = make(map[string]WatchFunc)
	a.mu.Unlock()

	if a.ownLoop {
		a.loop.Stop()
	}
}

// Server returns the authorization server base URL.
func (a *Auth) Server() string {
	return a.server
}

// ServerOrigin returns the origin of the authorization server, used as
// the expected origin of inbound frame messages.
func (a *Auth) ServerOrigin() string {
	u, err := url.Parse(a.server)
	if err != nil {
		return a.server
	}
	return u.Scheme + "://" + u.Host
}

// State returns the current attempt correlation value, which may be
// empty before the first authorize URL is built.
func (a *Auth) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// currentGeneration snapshots the liveness counter guarding token writes.
func (a *Auth) currentGeneration() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// validatePageOrigin enforces the preconditions of the in-page polling
// flow: the redirect URI must share the hosting page's origin, and that
// origin must be secure.
func (a *Auth) validatePageOrigin() error {
	pageOrigin := a.page.Origin()
	redirect, err := url.Parse(a.opts.RedirectURI)
	if err != nil {
		return fmt.Errorf("parsing redirect URI: %w", err)
	}
	if redirect.Scheme+"://"+redirect.Host != pageOrigin {
		return ErrOriginMismatch
	}

	pu, err := url.Parse(pageOrigin)
	if err != nil {
		return fmt.Errorf("parsing page origin: %w", err)
	}
	host := pu.Hostname()
	if pu.Scheme != "https" && host != "localhost" && host != "127.0.0.1" {
		return ErrInsecureOrigin
	}
	return nil
}
