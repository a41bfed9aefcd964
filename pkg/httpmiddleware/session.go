package httpmiddleware

import (
	"context"
	"net/http"
)

// SessionConfig tells Session where clients put their session id.
type SessionConfig struct {
	Header string
	Cookie string
	// Default is used for a missing or malformed id when Mint is nil.
	Default string
	// Mint issues a fresh id for callers that sent none. The id is echoed
	// in Header and set as Cookie on the response.
	Mint func() string
}

type sessionKey struct{}

type sessionValue struct {
	id     string
	issued bool
}

// SessionFromContext returns the session id stored by Session.
func SessionFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey{}).(sessionValue)
	return v.id
}

// SessionIssued reports whether Session minted the id for this request.
func SessionIssued(ctx context.Context) bool {
	v, _ := ctx.Value(sessionKey{}).(sessionValue)
	return v.issued
}

// WithSession stores a session id in ctx.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionValue{id: id})
}

// SetSession hands a session id to the client through the configured
// header and cookie.
func (cfg SessionConfig) SetSession(w http.ResponseWriter, id string) {
	if cfg.Header != "" {
		w.Header().Set(cfg.Header, id)
	}
	if cfg.Cookie != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     cfg.Cookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Session resolves the caller's session id from the header, then the
// cookie. Callers without a valid id get a minted one, or the configured
// default when Mint is nil.
func Session(cfg SessionConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cfg.Header != "" {
				id = r.Header.Get(cfg.Header)
			}
			if id == "" && cfg.Cookie != "" {
				if c, err := r.Cookie(cfg.Cookie); err == nil {
					id = c.Value
				}
			}
			v := sessionValue{id: id}
			if !printableASCII(id, maxRequestIDLen) {
				v.id = cfg.Default
				if cfg.Mint != nil {
					v = sessionValue{id: cfg.Mint(), issued: true}
					cfg.SetSession(w, v.id)
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, v)))
		})
	}
}
