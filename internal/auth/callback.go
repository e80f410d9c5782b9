package auth

import (
	"context"
	"net/url"
	"strings"

	"nametagauth-go/internal/metrics"
)

// CallbackError is an error the authorization server reported in the
// callback fragment (for example "access_denied").
type CallbackError struct {
	Reason string
}

func (e *CallbackError) Error() string {
	return e.Reason
}

// HandleCallback inspects the hosting page's URL fragment for an
// authorization response. It is safe to call on every page load: when the
// fragment carries no state or no code there is nothing to handle and it
// returns (nil, nil). A server-reported error short-circuits without an
// exchange. Otherwise the code is exchanged, the token persisted (guarded
// against superseding sign-outs), watchers notified, and a vacuum pass
// run.
func (a *Auth) HandleCallback(ctx context.Context) (*Token, error) {
	if !a.opts.PKCE {
		return nil, ErrPKCEDisabled
	}

	frag := strings.TrimPrefix(a.page.Fragment(), "#")
	values, err := url.ParseQuery(frag)
	if err != nil {
		// Not an authorization response fragment.
		return nil, nil
	}

	state := values.Get("state")
	if state == "" {
		return nil, nil
	}
	if reason := values.Get("error"); reason != "" {
		return nil, &CallbackError{Reason: reason}
	}
	code := values.Get("code")
	if code == "" {
		return nil, nil
	}

	a.mu.Lock()
	// A fresh page load starts with no state; the attempt's state arrives
	// in the fragment and stays the correlation key through the exchange.
	if a.state == "" {
		a.state = state
	}
	generation := a.generation
	a.mu.Unlock()

	tok, err := a.exchangeCode(ctx, code, state)
	if err != nil {
		return nil, err
	}

	written, err := a.writeToken(tok, generation)
	if err != nil {
		return nil, err
	}
	if !written {
		return nil, nil
	}

	if removed, err := a.sessions.Vacuum(); err != nil {
		a.logger.Printf("vacuum after exchange: %v", err)
	} else if removed > 0 {
		metrics.VacuumRemoved.Add(float64(removed))
	}

	return tok, nil
}
