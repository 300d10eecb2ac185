package auth

import (
	"net/http"
	"time"
)

const (
	accessCookie   = "selah-access-token"
	refreshCookie  = "selah-refresh-token"
	verifierCookie = "selah-code-verifier"

	refreshLifetime  = 30 * 24 * time.Hour
	verifierLifetime = 10 * time.Minute
)

// secureCookies is disabled by tests and local development over plain HTTP.
var secureCookies = true

func setSessionCookies(w http.ResponseWriter, tokens *Tokens) {
	var accessLifetime = time.Duration(tokens.ExpiresIn) * time.Second
	if accessLifetime <= 0 {
		accessLifetime = time.Hour
	}
	http.SetCookie(w, newCookie(accessCookie, tokens.AccessToken, "/", accessLifetime))
	if tokens.RefreshToken != "" {
		http.SetCookie(w, newCookie(refreshCookie, tokens.RefreshToken, "/api/auth", refreshLifetime))
	}
}

func clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, expiredCookie(accessCookie, "/"))
	http.SetCookie(w, expiredCookie(refreshCookie, "/api/auth"))
}

func newCookie(name, value, path string, lifetime time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(lifetime.Seconds()),
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func expiredCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSecureCookies toggles the Secure attribute of session cookies.
func SetSecureCookies(secure bool) {
	secureCookies = secure
}
