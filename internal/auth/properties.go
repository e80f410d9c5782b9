package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Property is one released property of the signed-in person.
type Property struct {
	Scope string      `json:"scope"`
	Value interface{} `json:"value"`
	Exp   time.Time   `json:"exp"`
}

// Properties is the document returned by the properties endpoint.
type Properties struct {
	Subject    string     `json:"sub"`
	Properties []Property `json:"properties"`
}

// Get returns the property for scope, or nil.
func (p *Properties) Get(scope string) *Property {
	for i := range p.Properties {
		if p.Properties[i].Scope == scope {
			return &p.Properties[i]
		}
	}
	return nil
}

// GetProperties fetches the released properties for the given scopes.
// Absence of a session and any server-side failure both yield a nil
// document rather than an error: properties are best-effort decoration on
// top of the session.
func (a *Auth) GetProperties(ctx context.Context, scopes []string) (*Properties, error) {
	tok, err := a.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/people/me/properties/%s?token=%s",
		a.server, strings.Join(scopes, ","), url.QueryEscape(tok.IDToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("properties request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil
	}

	var props Properties
	if err := json.NewDecoder(resp.Body).Decode(&props); err != nil {
		return nil, fmt.Errorf("decoding properties response: %w", err)
	}
	return &props, nil
}
