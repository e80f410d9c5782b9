package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nametagauth-go/internal/app"
	"nametagauth-go/internal/auth"
	"nametagauth-go/internal/config"
)

// consolePage is the hosting context for the headless client: the
// "page" origin is the redirect URI's origin, the fragment is whatever
// callback URL the operator pastes in, and navigation prints the target.
type consolePage struct {
	origin   string
	fragment string
}

func newConsolePage(redirectURI string) (*consolePage, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URI: %w", err)
	}
	return &consolePage{origin: u.Scheme + "://" + u.Host}, nil
}

func (p *consolePage) Origin() string   { return p.origin }
func (p *consolePage) Fragment() string { return p.fragment }

func (p *consolePage) Navigate(target string) {
	fmt.Printf("Navigate to: %s\n", target)
}

func (p *consolePage) ReturnHint() string { return "cli" }

// adoptCallback takes a pasted callback URL and keeps its fragment.
func (p *consolePage) adoptCallback(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parsing callback URL: %w", err)
	}
	p.fragment = u.Fragment
	return nil
}

func main() {
	log.SetPrefix("nametagauth: ")
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "./configs/config.json", "path to the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	page, err := newConsolePage(cfg.Auth.RedirectURI)
	if err != nil {
		log.Fatalf("Failed to derive page origin: %v", err)
	}

	// Create a new application instance
	application, err := app.New(cfg, page)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create a context that we can cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Println("Shutdown signal received, initiating graceful shutdown...")
		if err := application.Stop(ctx); err != nil {
			log.Printf("Error during graceful shutdown: %v", err)
		}
		cancel()
		os.Exit(0)
	}()

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatalf("Application failed to start: %v", err)
	}

	if err := run(ctx, application, page); err != nil {
		log.Printf("Sign-in flow failed: %v", err)
	}

	if err := application.Stop(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}

// run drives one interactive sign-in: print the authorization URL, wait
// for the operator to paste the callback URL, and complete the exchange.
func run(ctx context.Context, application *app.Application, page *consolePage) error {
	engine := application.Engine

	if tok, err := engine.Token(); err == nil && tok != nil {
		fmt.Printf("Already signed in as %s\n", tok.Subject)
		return nil
	}

	authorizeURL, err := engine.AuthorizeURL(auth.ModePage)
	if err != nil {
		return err
	}
	fmt.Printf("Open this URL in a browser to sign in:\n\n  %s\n\n", authorizeURL)
	fmt.Print("Paste the callback URL here: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return scanner.Err()
	}
	if err := page.adoptCallback(scanner.Text()); err != nil {
		return err
	}

	tok, err := engine.HandleCallback(ctx)
	if err != nil {
		return err
	}
	if tok == nil {
		fmt.Println("The callback URL did not carry an authorization response.")
		return nil
	}

	fmt.Printf("Signed in as %s\n", tok.Subject)

	if props, err := engine.GetProperties(ctx, application.Config.Auth.Scopes); err == nil && props != nil {
		for _, prop := range props.Properties {
			fmt.Printf("  %s: %v\n", prop.Scope, prop.Value)
		}
	}
	return nil
}
