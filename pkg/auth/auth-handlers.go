package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/rest"
)

// Handlers exposes the session flows over HTTP; sessions are created per request, cookies carry them across.
type Handlers struct {
	provider Provider
	users    UserEnsurer
	siteURL  string
}

func NewHandlers(provider Provider, users UserEnsurer, siteURL string) *Handlers {
	return &Handlers{provider: provider, users: users, siteURL: strings.TrimRight(siteURL, "/")}
}

func RegisterHandlers(engine *rest.Engine, h *Handlers) {
	engine.Post("/api/auth/signup", h.signUp)
	engine.Post("/api/auth/signin", h.signIn)
	engine.Post("/api/auth/signout", h.signOut)
	engine.Post("/api/auth/refresh", h.refresh)
	engine.Post("/api/auth/forgot-password", h.forgotPassword)
	engine.Post("/api/auth/update-password", h.updatePassword)

	// the callback path is chosen by the provider's dashboard settings, hence the catch-all
	engine.Get("/api/auth/*supabase", h.callback)
	engine.Get("/api/oauth/:provider", h.authorize)
}

type sessionResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	State   State   `json:"state"`
	Session *Tokens `json:"session,omitempty"`
}

// newSession binds a fresh session to the response: session changes become cookie changes.
func (h *Handlers) newSession(w http.ResponseWriter) *Session {
	var session = NewSession(h.provider, h.users, h.siteURL)
	session.Subscribe(func(event Event, tokens *Tokens) {
		switch event {
		case EventSignedIn, EventTokenRefreshed, EventUserUpdated:
			setSessionCookies(w, tokens)
		case EventSignedOut:
			clearSessionCookies(w)
		}
	})
	return session
}

func (h *Handlers) signUp(w http.ResponseWriter, r *http.Request) {
	data, err := JSON.Decode[SignUpData](r)
	if err != nil {
		JSON.ValidationError(w, err)
		return
	}
	var session = h.newSession(w)
	respond(w, r, session, session.SignUp(r.Context(), data))
}

func (h *Handlers) signIn(w http.ResponseWriter, r *http.Request) {
	data, err := JSON.Decode[SignInData](r)
	if err != nil {
		JSON.ValidationError(w, err)
		return
	}
	var session = h.newSession(w)
	respond(w, r, session, session.SignIn(r.Context(), data))
}

func (h *Handlers) signOut(w http.ResponseWriter, r *http.Request) {
	var session = h.newSession(w)
	if token, err := parseToken(r); err == nil {
		session.Restore(&Tokens{AccessToken: token})
	}
	if err := session.SignOut(r.Context()); err != nil {
		// the local session is gone regardless
		rest.Logger(r).WithError(err).Warn("provider sign out failed")
	}
	respond(w, r, session, nil)
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var data RefreshData
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		data.RefreshToken = cookie.Value
	}
	if r.ContentLength != 0 {
		body, err := JSON.Decode[RefreshData](r)
		if err != nil {
			JSON.ValidationError(w, err)
			return
		}
		if body.RefreshToken != "" {
			data = body
		}
	}
	if err := data.Validate(); err != nil {
		JSON.ValidationError(w, err)
		return
	}
	var session = h.newSession(w)
	respond(w, r, session, session.Refresh(r.Context(), data.RefreshToken))
}

func (h *Handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	data, err := JSON.Decode[ForgotPasswordData](r)
	if err != nil {
		JSON.ValidationError(w, err)
		return
	}
	var session = h.newSession(w)
	respond(w, r, session, session.ForgotPassword(r.Context(), data))
}

// updatePassword expects the recovery session, established by the reset link, as its bearer token.
func (h *Handlers) updatePassword(w http.ResponseWriter, r *http.Request) {
	data, err := JSON.Decode[UpdatePasswordData](r)
	if err != nil {
		JSON.ValidationError(w, err)
		return
	}
	var session = h.newSession(w)
	if token, err := parseToken(r); err == nil {
		session.BeginPasswordReset(&Tokens{AccessToken: token})
	}
	respond(w, r, session, session.UpdatePassword(r.Context(), data))
}

// authorize starts an OAuth sign in, keeping the PKCE verifier in a short-lived cookie.
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) {
	var provider = rest.GetParam(r, "provider")
	if err := validateOAuthProvider(provider); err != nil {
		JSON.ValidationError(w, err)
		return
	}

	var verifier = rest.MustGetNewUUID() + rest.MustGetNewUUID()
	http.SetCookie(w, newCookie(verifierCookie, verifier, "/api/auth", verifierLifetime))
	http.Redirect(w, r, h.provider.AuthorizeURL(provider, h.siteURL+"/api/auth/callback", codeChallenge(verifier)), http.StatusFound)
}

// callback exchanges the authorization code for a session and sends the browser on its way.
func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	var query = r.URL.Query()
	if description := query.Get("error_description"); description != "" {
		redirectWithError(w, r, description)
		return
	}

	var code = query.Get("code")
	if code == "" {
		redirectWithError(w, r, "Missing authorization code")
		return
	}

	cookie, err := r.Cookie(verifierCookie)
	if err != nil || cookie.Value == "" {
		redirectWithError(w, r, "Your sign in attempt expired, please retry")
		return
	}
	http.SetCookie(w, expiredCookie(verifierCookie, "/api/auth"))

	var session = h.newSession(w)
	if err = session.CompleteOAuth(r.Context(), code, cookie.Value); err != nil {
		rest.Logger(r).WithError(err).Warn("OAuth code exchange failed")
		redirectWithError(w, r, session.Snapshot().Error)
		return
	}
	http.Redirect(w, r, "/reading", http.StatusFound)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(message), http.StatusFound)
}

// codeChallenge derives the S256 PKCE challenge.
func codeChallenge(verifier string) string {
	var sum = sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// respond reports the session's observable state, choosing the status from the flow's error.
func respond(w http.ResponseWriter, r *http.Request, session *Session, err error) {
	var snapshot = session.Snapshot()
	var body = sessionResponse{
		Success: err == nil,
		Message: snapshot.Success,
		State:   snapshot.State,
		Session: session.Tokens(),
	}
	if err != nil {
		body.Message = snapshot.Error
	}

	var status = http.StatusOK
	var validationErrors validation.Errors
	switch {
	case err == nil:
	case errors.As(err, &validationErrors):
		status = http.StatusBadRequest
	case errors.Is(err, ErrEmailTaken):
		status = http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNoResetSession), errors.Is(err, ErrInvalidToken):
		status = http.StatusUnauthorized
	default:
		rest.Logger(r).WithError(err).Error("authentication flow failed")
		status = http.StatusInternalServerError
	}
	JSON.Status(w, status, body)
}
