package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"nametagauth-go/internal/metrics"
	"nametagauth-go/internal/session"
	"nametagauth-go/internal/store"
)

// ExchangeError is a hard failure from the token endpoint. Detail carries
// the server's X-Error-Message header when present, the response body
// text otherwise.
type ExchangeError struct {
	StatusCode int
	Detail     string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("cannot exchange code for token: %s", e.Detail)
}

// ExchangeCode turns an authorization code into a Token via the token
// endpoint, recovering the code verifier stored for the current state. A
// missing verifier is tolerated (some servers do not require one) but
// reported for diagnostics. The result is not persisted; HandleCallback
// does that with its freshness guard.
func (a *Auth) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()
	return a.exchangeCode(ctx, code, state)
}

func (a *Auth) exchangeCode(ctx context.Context, code, state string) (*Token, error) {
	if !a.opts.PKCE {
		return nil, ErrPKCEDisabled
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", a.opts.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", a.opts.RedirectURI)

	verifier, err := a.sessions.Get(session.StorageKeyFor(state))
	switch {
	case err == nil:
		form.Set("code_verifier", verifier)
	case errors.Is(err, store.ErrNotFound):
		a.logger.Printf("[%s] no stored code verifier, proceeding without one", state)
		metrics.ExchangesWithoutVerifier.Inc()
	default:
		a.logger.Printf("[%s] reading stored code verifier: %v", state, err)
		metrics.ExchangesWithoutVerifier.Inc()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.server+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		metrics.Exchanges.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.Exchanges.WithLabelValues("failure").Inc()
		detail := resp.Header.Get("X-Error-Message")
		if detail == "" {
			body, _ := io.ReadAll(resp.Body)
			detail = strings.TrimSpace(string(body))
		}
		if detail == "" {
			detail = resp.Status
		}
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		metrics.Exchanges.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	metrics.Exchanges.WithLabelValues("success").Inc()
	return &tok, nil
}
