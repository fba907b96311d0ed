package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"pechincha/internal/backend"
	"pechincha/internal/guard"
)

const (
	deviceCookie  = "pechincha_device"
	refreshCookie = "pechincha_refresh"
	deviceMaxAge  = 365 * 24 * time.Hour
)

// deviceID returns the caller's device id, issuing one when create is set.
func (s *Server) deviceID(w http.ResponseWriter, r *http.Request, create bool) string {
	if c, err := r.Cookie(deviceCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if !create {
		return ""
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     deviceCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.settings.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) setSessionCookies(w http.ResponseWriter, sess *backend.Session) {
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 3600
	}
	http.SetCookie(w, &http.Cookie{
		Name:     guard.AccessCookie,
		Value:    sess.AccessToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.settings.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	if sess.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookie,
			Value:    sess.RefreshToken,
			Path:     "/api/auth",
			MaxAge:   int((30 * 24 * time.Hour).Seconds()),
			HttpOnly: true,
			Secure:   s.settings.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{{guard.AccessCookie, "/"}, {refreshCookie, "/api/auth"}} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.settings.CookieSecure,
		})
	}
}
