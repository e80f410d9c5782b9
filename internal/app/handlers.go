package app

import (
	"encoding/json"
	"net/http"

	"nametagauth-go/internal/auth"
)

// statusResponse is the body of GET /status.
type statusResponse struct {
	SignedIn bool   `json:"signed_in"`
	Subject  string `json:"subject,omitempty"`
}

// handleStatus reports whether the engine currently holds a session.
func (a *Application) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tok, err := a.Engine.Token()
	if err != nil {
		a.Logger.Printf("status: reading token: %v", err)
		http.Error(w, "Session lookup failed", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{SignedIn: tok != nil}
	if tok != nil {
		resp.Subject = tok.Subject
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleAuthorizeURL returns a fresh authorization URL for the
// configured client.
func (a *Application) handleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	u, err := a.Engine.AuthorizeURL(auth.ModePage)
	if err != nil {
		a.Logger.Printf("authorize-url: %v", err)
		http.Error(w, "Failed to build authorization URL", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": u})
}

// handleSignOut removes the current session.
func (a *Application) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := a.Engine.SignOut(); err != nil {
		a.Logger.Printf("signout: %v", err)
		http.Error(w, "Sign-out failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
