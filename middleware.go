package cas

import (
	"context"
	"net/http"
	"net/url"
)

// ContextKey is the type for context keys set by the middleware.
type ContextKey string

const (
	// PrincipalContextKey is the context key under which the
	// authenticated principal is stored.
	PrincipalContextKey ContextKey = "cas_principal"
)

// Middleware guards HTTP handlers with CAS authentication. It owns the
// session and cookie state around a Strategy: the strategy decides the
// outcome of each request, the middleware translates it into responses
// and keeps the principal across requests.
type Middleware struct {
	strategy *Strategy
	store    SessionStore
	// IgnorePaths are paths served without authentication.
	IgnorePaths []string
	// LoginParams are forwarded on every login redirect; parameters
	// with empty values are dropped.
	LoginParams map[string]string
}

// NewMiddleware creates a middleware around the given strategy. The
// session store may be nil, in which case every request revalidates.
func NewMiddleware(strategy *Strategy, store SessionStore) *Middleware {
	return &Middleware{
		strategy: strategy,
		store:    store,
	}
}

// Handler wraps next with CAS authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, path := range m.IgnorePaths {
			if r.URL.Path == path {
				next.ServeHTTP(w, r)
				return
			}
		}

		// An established session wins over any ticket on the URL,
		// except for a single-logout request which must reach the
		// strategy.
		if m.store != nil && r.URL.Query().Get("RelayState") == "" {
			if p, err := m.store.Get(r); err == nil && p != nil {
				ctx := context.WithValue(r.Context(), PrincipalContextKey, p)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		outcome := m.strategy.Authenticate(r, &AuthenticateOptions{LoginParams: m.LoginParams})
		switch outcome.Kind {
		case OutcomeRedirect:
			if outcome.EndSession && m.store != nil {
				m.store.Delete(w, r)
			}
			http.Redirect(w, r, outcome.Redirect, http.StatusFound)

		case OutcomeSuccess:
			if m.store != nil {
				if err := m.store.Set(w, r, outcome.Principal); err != nil {
					http.Error(w, "Failed to create session", http.StatusInternalServerError)
					return
				}
			}
			// Drop the ticket from the URL so a refresh does not
			// replay a spent ticket.
			http.Redirect(w, r, cleanRequestURL(r), http.StatusFound)

		case OutcomeFailure:
			http.Error(w, "Authentication failed", http.StatusUnauthorized)

		default:
			http.Error(w, "Authentication error", http.StatusBadGateway)
		}
	})
}

// HandlerFunc wraps an http.HandlerFunc with CAS authentication.
func (m *Middleware) HandlerFunc(next http.HandlerFunc) http.HandlerFunc {
	return m.Handler(next).ServeHTTP
}

// Logout clears the local session and returns the SSO logout URL to
// redirect the user agent to.
func (m *Middleware) Logout(w http.ResponseWriter, r *http.Request) string {
	if m.store != nil {
		m.store.Delete(w, r)
	}
	return m.strategy.LogoutURL()
}

// GetPrincipalFromContext retrieves the authenticated principal placed
// in the request context by the middleware.
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

// cleanRequestURL is the request's own URL with the ticket parameter
// removed, keeping the redirect relative to the current host.
func cleanRequestURL(r *http.Request) string {
	q := r.URL.Query()
	q.Del("ticket")
	u := url.URL{Path: r.URL.Path, RawQuery: q.Encode()}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
