package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silktrader/selah/pkg/rest"
	"github.com/silktrader/selah/pkg/storage/storagetest"
)

func newAuthEngine(t *testing.T) (http.Handler, *fakeGoTrue, *GoTrueClient) {
	t.Helper()
	fake, client := newFakeGoTrue(t)
	engine, err := rest.New(rest.Config{Logger: storagetest.Logger()})
	require.NoError(t, err)
	RegisterHandlers(engine, NewHandlers(client, newProfiles(), site))

	// a protected route, echoing the authenticated user
	engine.Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(MustGetUserId(r)))
	}, Auth(client))
	return engine.Handler(), fake, client
}

func post(handler http.Handler, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestSignInRoute(t *testing.T) {
	handler, fake, _ := newAuthEngine(t)
	user := fake.register("ruth@example.com", "naomi!")

	w := post(handler, "/api/auth/signin", `{"email":"ruth@example.com","password":"wrong!"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")
	assert.Nil(t, cookieNamed(w, accessCookie))

	w = post(handler, "/api/auth/signin", `{"email":"ruth@example.com","password":"naomi!"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body sessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, SignedIn, body.State)
	require.NotNil(t, body.Session)
	assert.Equal(t, user.ID, body.Session.User.ID)

	access := cookieNamed(w, accessCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access-"+user.ID, access.Value)
	assert.True(t, access.HttpOnly)
	require.NotNil(t, cookieNamed(w, refreshCookie))
}

func TestSignInRoute_UnconfirmedEmail(t *testing.T) {
	handler, fake, _ := newAuthEngine(t)
	fake.register("ruth@example.com", "naomi!")
	fake.unconfirm("ruth@example.com")

	w := post(handler, "/api/auth/signin", `{"email":"ruth@example.com","password":"naomi!"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body sessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Invalid email or password", body.Message)
	assert.Nil(t, cookieNamed(w, accessCookie))
}

func TestSignUpRoute_TakenEmail(t *testing.T) {
	handler, fake, _ := newAuthEngine(t)
	fake.register("ruth@example.com", "naomi!")

	w := post(handler, "/api/auth/signup", `{"email":"ruth@example.com","password":"naomi!","confirmPassword":"naomi!"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already registered")
}

func TestRefreshAndSignOutRoutes(t *testing.T) {
	handler, fake, _ := newAuthEngine(t)
	user := fake.register("ruth@example.com", "naomi!")

	w := post(handler, "/api/auth/refresh", "", &http.Cookie{Name: refreshCookie, Value: "refresh-" + user.ID})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, cookieNamed(w, accessCookie))

	w = post(handler, "/api/auth/refresh", `{"refreshToken":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(handler, "/api/auth/signout", "", &http.Cookie{Name: accessCookie, Value: "access-" + user.ID})
	require.Equal(t, http.StatusOK, w.Code)
	cleared := cookieNamed(w, accessCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
	assert.Equal(t, 1, fake.logoutCount())
}

func TestPasswordRoutes(t *testing.T) {
	handler, fake, _ := newAuthEngine(t)
	user := fake.register("ruth@example.com", "naomi!")

	w := post(handler, "/api/auth/forgot-password", `{"email":"ruth@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(ResetRequested))

	w = post(handler, "/api/auth/update-password", `{"password":"gleaner","confirmPassword":"gleaner"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/update-password",
		bytes.NewBufferString(`{"password":"gleaner","confirmPassword":"gleaner"}`))
	req.Header.Set("Authorization", "Bearer access-"+user.ID)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gleaner", fake.password("ruth@example.com"))
}

func TestOAuthRoutes(t *testing.T) {
	handler, _, _ := newAuthEngine(t)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/oauth/myspace", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/oauth/github", nil))
	require.Equal(t, http.StatusFound, w.Code)

	verifier := cookieNamed(w, verifierCookie)
	require.NotNil(t, verifier)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(location.Path, "/auth/v1/authorize"))
	assert.Equal(t, "github", location.Query().Get("provider"))
	assert.Equal(t, codeChallenge(verifier.Value), location.Query().Get("code_challenge"))
	assert.Equal(t, site+"/api/auth/callback", location.Query().Get("redirect_to"))

	callback := func(query string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/callback"+query, nil)
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w = callback("?code=good-code", verifier)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/reading", w.Header().Get("Location"))
	require.NotNil(t, cookieNamed(w, accessCookie))

	w = callback("?code=good-code")
	require.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/?error="))

	w = callback("?error=access_denied&error_description=User+denied+access", verifier)
	assert.Equal(t, "/?error="+url.QueryEscape("User denied access"), w.Header().Get("Location"))

	w = callback("?code=stale-code", verifier)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/?error="))
	assert.Nil(t, cookieNamed(w, accessCookie))
}

func TestAuthMiddleware(t *testing.T) {
	handler, fake, client := newAuthEngine(t)
	user := fake.register("ruth@example.com", "naomi!")

	get := func(configure func(r *http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		configure(req)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("missing token", func(t *testing.T) {
		w := get(func(r *http.Request) {})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer", func(t *testing.T) {
		w := get(func(r *http.Request) { r.Header.Set("Authorization", "Bearer access-"+user.ID) })
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, user.ID, w.Body.String())
	})

	t.Run("cookie", func(t *testing.T) {
		w := get(func(r *http.Request) { r.AddCookie(&http.Cookie{Name: accessCookie, Value: "access-" + user.ID}) })
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, user.ID, w.Body.String())
	})

	t.Run("expired token forces sign out", func(t *testing.T) {
		w := get(func(r *http.Request) { r.AddCookie(&http.Cookie{Name: accessCookie, Value: "access-expired"}) })
		require.Equal(t, http.StatusUnauthorized, w.Code)

		var body Expired
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "/", body.Redirect)
		assert.NotEmpty(t, body.Error)

		cleared := cookieNamed(w, accessCookie)
		require.NotNil(t, cleared)
		assert.Negative(t, cleared.MaxAge)
	})

	t.Run("provider outage", func(t *testing.T) {
		fake.setDown(true)
		defer fake.setDown(false)
		w := get(func(r *http.Request) { r.Header.Set("Authorization", "Bearer access-"+user.ID) })
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	_, err := client.GetUser(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "access-expired")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
