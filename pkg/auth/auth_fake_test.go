package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/silktrader/selah/pkg/rest"
)

const anonKey = "anon-key"

type fakeAccount struct {
	user     AuthUser
	password string
	// unconfirmed accounts can't sign in until their email is verified
	unconfirmed bool
}

// fakeGoTrue mimics the subset of the hosted auth API the client relies on.
type fakeGoTrue struct {
	mu        sync.Mutex
	accounts  map[string]*fakeAccount
	redirects []string
	logouts   int
	// down makes every endpoint fail as during an outage
	down bool
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *GoTrueClient) {
	t.Helper()
	fake := &fakeGoTrue{accounts: make(map[string]*fakeAccount)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := NewGoTrueClient(GoTrueConfig{BaseURL: server.URL, AnonKey: anonKey, Timeout: time.Second})
	require.NoError(t, err)
	return fake, client
}

func (f *fakeGoTrue) register(email, password string) AuthUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	var user = AuthUser{
		ID:         rest.MustGetNewUUID(),
		Email:      email,
		Identities: []json.RawMessage{json.RawMessage(`{"provider":"email"}`)},
	}
	f.accounts[email] = &fakeAccount{user: user, password: password}
	return user
}

func (f *fakeGoTrue) unconfirm(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email].unconfirmed = true
}

func (f *fakeGoTrue) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeGoTrue) redirectsSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.redirects...)
}

func (f *fakeGoTrue) logoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

func (f *fakeGoTrue) accountCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

func (f *fakeGoTrue) password(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, found := f.accounts[email]; found {
		return account.password
	}
	return ""
}

func (f *fakeGoTrue) tokensFor(user AuthUser) Tokens {
	return Tokens{
		AccessToken:  "access-" + user.ID,
		RefreshToken: "refresh-" + user.ID,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		User:         user,
	}
}

func (f *fakeGoTrue) byToken(token, prefix string) *fakeAccount {
	for _, account := range f.accounts {
		if token == prefix+account.user.ID {
			return account
		}
	}
	return nil
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != anonKey {
		reply(w, http.StatusUnauthorized, map[string]string{"message": "No API key found in request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		reply(w, http.StatusServiceUnavailable, map[string]string{"msg": "upstream unavailable"})
		return
	}

	// bodies may carry nested objects, such as captcha metadata
	var raw map[string]any
	if r.Body != nil && r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&raw)
	}
	var body = make(map[string]string, len(raw))
	for key, value := range raw {
		if text, ok := value.(string); ok {
			body[key] = text
		}
	}
	var bearer = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	switch path := strings.TrimPrefix(r.URL.Path, "/auth/v1"); {
	case path == "/signup":
		if _, taken := f.accounts[body["email"]]; taken {
			reply(w, http.StatusUnprocessableEntity, map[string]any{
				"code": 422, "error_code": "user_already_exists", "msg": "User already registered",
			})
			return
		}
		f.redirects = append(f.redirects, r.URL.Query().Get("redirect_to"))
		var user = AuthUser{
			ID:         rest.MustGetNewUUID(),
			Email:      body["email"],
			Identities: []json.RawMessage{json.RawMessage(`{"provider":"email"}`)},
		}
		f.accounts[body["email"]] = &fakeAccount{user: user, password: body["password"]}
		reply(w, http.StatusOK, user)

	case path == "/token" && r.URL.Query().Get("grant_type") == "password":
		account, found := f.accounts[body["email"]]
		if !found || account.password != body["password"] {
			reply(w, http.StatusBadRequest, map[string]string{
				"error": "invalid_grant", "error_description": "Invalid login credentials",
			})
			return
		}
		if account.unconfirmed {
			reply(w, http.StatusBadRequest, map[string]string{"error_code": "email_not_confirmed", "msg": "Email not confirmed"})
			return
		}
		reply(w, http.StatusOK, f.tokensFor(account.user))

	case path == "/token" && r.URL.Query().Get("grant_type") == "refresh_token":
		if account := f.byToken(body["refresh_token"], "refresh-"); account != nil {
			reply(w, http.StatusOK, f.tokensFor(account.user))
			return
		}
		reply(w, http.StatusBadRequest, map[string]string{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token"})

	case path == "/token" && r.URL.Query().Get("grant_type") == "pkce":
		if body["auth_code"] != "good-code" || body["code_verifier"] == "" {
			reply(w, http.StatusBadRequest, map[string]string{"error_code": "bad_code_verifier", "msg": "invalid flow state"})
			return
		}
		var user = AuthUser{
			ID:           rest.MustGetNewUUID(),
			Email:        "Pilgrim@Example.com",
			UserMetadata: map[string]any{"full_name": "John Bunyan"},
		}
		f.accounts[user.Email] = &fakeAccount{user: user}
		reply(w, http.StatusOK, f.tokensFor(user))

	case path == "/user" && r.Method == http.MethodGet:
		if account := f.byToken(bearer, "access-"); account != nil {
			reply(w, http.StatusOK, account.user)
			return
		}
		reply(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT: token is expired"})

	case path == "/user" && r.Method == http.MethodPut:
		account := f.byToken(bearer, "access-")
		if account == nil {
			reply(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT: token is expired"})
			return
		}
		account.password = body["password"]
		reply(w, http.StatusOK, account.user)

	case path == "/logout":
		f.logouts++
		w.WriteHeader(http.StatusNoContent)

	case path == "/recover":
		f.redirects = append(f.redirects, r.URL.Query().Get("redirect_to"))
		reply(w, http.StatusOK, map[string]string{})

	default:
		reply(w, http.StatusNotFound, map[string]string{"msg": "not found"})
	}
}

// profiles records the local users the session asked for.
type profiles struct {
	mu    sync.Mutex
	names map[string]string
}

func newProfiles() *profiles {
	return &profiles{names: make(map[string]string)}
}

func (p *profiles) EnsureUser(_ context.Context, id, _, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, found := p.names[id]; !found {
		p.names[id] = name
	}
	return nil
}
