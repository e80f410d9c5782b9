package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"nametagauth-go/internal/auth"
	"nametagauth-go/internal/config"
	"nametagauth-go/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Application holds all the major components of the client host: the
// auth engine, its backing stores, and the control server exposing
// metrics and session endpoints.
type Application struct {
	Config        *config.Config
	Logger        *log.Logger
	LongTerm      *store.SQLiteStore
	Engine        *auth.Auth
	ControlServer *http.Server
}

// New creates and initializes a new Application instance. page is the
// hosting context the engine runs in.
func New(cfg *config.Config, page auth.Page) (*Application, error) {
	logger := log.New(os.Stdout, "nametagauth: ", log.LstdFlags)

	// Setup: long-term store. The session token lives here and is shared
	// by every process pointed at the same file.
	longTerm, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open long-term store: %w", err)
	}

	// Setup: auth engine. Verifiers are per-attempt and stay in memory,
	// like the per-tab session storage they mirror.
	engine, err := auth.New(auth.Options{
		ClientID:    cfg.Auth.ClientID,
		RedirectURI: cfg.Auth.RedirectURI,
		Scopes:      cfg.Auth.Scopes,
		Server:      cfg.Auth.Server,
		PKCE:        cfg.Auth.PKCE,
		SessionTTL:  cfg.Session.TTL.Duration,
	}, auth.Deps{
		Page:     page,
		LongTerm: longTerm,
		Session:  store.NewMemoryStore(),
		Logger:   logger,
	})
	if err != nil {
		longTerm.Close()
		return nil, fmt.Errorf("failed to create auth engine: %w", err)
	}

	app := &Application{
		Config:   cfg,
		Logger:   logger,
		LongTerm: longTerm,
		Engine:   engine,
	}

	// Setup: control server with metrics and session endpoints.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", app.handleStatus)
	mux.HandleFunc("/authorize-url", app.handleAuthorizeURL)
	mux.HandleFunc("/signout", app.handleSignOut)
	app.ControlServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: app.logRequests(mux),
	}

	return app, nil
}

// Start begins the application's services.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Println("Starting application services...")

	go func() {
		a.Logger.Printf("Starting control server on %s", a.ControlServer.Addr)
		if err := a.ControlServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("Control server ListenAndServe: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Println("Stopping application services...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.ControlServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("Control server shutdown error: %v", err)
	}

	a.Engine.Close()

	if err := a.LongTerm.Close(); err != nil {
		a.Logger.Printf("Error closing long-term store: %v", err)
	}

	a.Logger.Println("Application stopped gracefully.")
	return nil
}
