package likes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silktrader/selah/pkg/auth"
	"github.com/silktrader/selah/pkg/rest"
	"github.com/silktrader/selah/pkg/storage/storagetest"
)

// signedIn stands in for the auth middleware, authenticating every request as the given user.
func signedIn(userId string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserId(r.Context(), userId)))
		})
	}
}

func postLike(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/like", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestLikeHandler(t *testing.T) {
	db := storagetest.New(t)
	author := storagetest.AddUser(t, db, "author")
	reader := storagetest.AddUser(t, db, "reader")
	reflection := storagetest.AddReflection(t, db, author, true, 0)

	engine, err := rest.New(rest.Config{Logger: storagetest.Logger()})
	require.NoError(t, err)
	RegisterHandlers(engine, NewStore(db), signedIn(reader))
	handler := engine.Handler()

	t.Run("like", func(t *testing.T) {
		w := postLike(t, handler, map[string]any{"userId": reader, "reflectionId": reflection, "like": true})
		require.Equal(t, http.StatusOK, w.Code)

		var body likeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.True(t, body.Success)
		assert.Equal(t, 1, body.Likes)
		assert.Equal(t, []string{reader}, body.LikedBy)
	})

	t.Run("malformed identifiers", func(t *testing.T) {
		w := postLike(t, handler, map[string]any{"userId": reader, "reflectionId": "not-a-uuid", "like": true})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"error"`)
	})

	t.Run("missing intent", func(t *testing.T) {
		w := postLike(t, handler, map[string]any{"userId": reader, "reflectionId": reflection})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("on behalf of someone else", func(t *testing.T) {
		w := postLike(t, handler, map[string]any{"userId": author, "reflectionId": reflection, "like": false})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown reflection", func(t *testing.T) {
		w := postLike(t, handler, map[string]any{"userId": reader, "reflectionId": rest.MustGetNewUUID(), "like": true})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unlike", func(t *testing.T) {
		w := postLike(t, handler, map[string]any{"userId": reader, "reflectionId": reflection, "like": false})
		require.Equal(t, http.StatusOK, w.Code)

		var body likeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, 0, body.Likes)
		assert.Empty(t, body.LikedBy)
	})
}
