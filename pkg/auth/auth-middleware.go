package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/rest"
)

/* There are two solutions to avoiding cyclic imports between `auth` and `user` packages:
1. merge the two in the user package
2. adopt and maintain an interface as a dependency in the auth package
*/

type contextKey int

const userIdKey contextKey = iota

// TokenVerifier resolves an access token into the provider user it was issued to.
type TokenVerifier interface {
	GetUser(ctx context.Context, accessToken string) (AuthUser, error)
}

// Expired is the body of 401 responses caused by rejected sessions.
type Expired struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect"`
}

// Auth ensures that requests carry a valid access token, either as a bearer or in the session cookie.
// Rejected tokens force a sign out: session cookies are cleared and clients are pointed at the landing page.
func Auth(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, request *http.Request) {

			var token, err = parseToken(request)
			if err != nil {
				reportUnauthorised(w)
				return
			}

			user, err := verifier.GetUser(request.Context(), token)
			if errors.Is(err, ErrInvalidToken) {
				rest.Logger(request).WithError(err).Debug("forcing sign out")
				clearSessionCookies(w)
				w.Header().Set("WWW-Authenticate", "Bearer")
				JSON.Status(w, http.StatusUnauthorized, Expired{"Your session has expired, please sign in again", "/"})
				return
			} else if err != nil || user.ID == "" {
				rest.Logger(request).WithError(err).Error("can't verify access token")
				JSON.Error(w, http.StatusInternalServerError, "Couldn't verify your session")
				return
			}

			// create a new context, stemming from the original one, adding the user's id for future reference
			next.ServeHTTP(w, request.WithContext(context.WithValue(request.Context(), userIdKey, user.ID)))
		})
	}
}

// parseToken extracts the access token from the authorization header, falling back on the session cookie.
func parseToken(request *http.Request) (string, error) {
	var header = request.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(header[7:]); token != "" {
			return token, nil
		}
	}
	if cookie, err := request.Cookie(accessCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", errors.New("bad authorization header")
}

func GetUserId(request *http.Request) (string, error) {
	// return an error to detect a possibly missing auth middleware
	if id, ok := request.Context().Value(userIdKey).(string); ok {
		return id, nil
	}
	return "", errors.New("missing user ID, is the auth middleware in place?")
}

// MustGetUserId panics when the route isn't protected by the Auth middleware, a programming error.
func MustGetUserId(request *http.Request) string {
	id, err := GetUserId(request)
	if err != nil {
		panic(err)
	}
	return id
}

// WithUserId returns a copy of the context carrying the authenticated user's id.
func WithUserId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIdKey, id)
}

func reportUnauthorised(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	JSON.Error(w, http.StatusUnauthorized, "Authentication required")
}
