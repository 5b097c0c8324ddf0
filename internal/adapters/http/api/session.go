package api

import (
	"net/http"
	"time"
)

// SessionDependencies mints and validates anonymous session ids.
type SessionDependencies interface {
	NewSessionID() string
	ValidSessionID(id string) bool
}

// sessionResolver binds requests to a session through a cookie.
type sessionResolver struct {
	deps   SessionDependencies
	cookie string
	secure bool
	maxAge time.Duration
}

// resolve returns the request's session id, issuing a new cookie when the
// request carries none or an invalid one.
func (s *sessionResolver) resolve(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cookie); err == nil && s.deps.ValidSessionID(c.Value) {
		return c.Value
	}
	id := s.deps.NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
