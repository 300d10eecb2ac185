package reflections

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

func TestReflectionRoutes(t *testing.T) {
	db := storagetest.New(t)
	author := storagetest.AddUser(t, db, "author")

	engine, err := rest.New(rest.Config{Logger: storagetest.Logger()})
	require.NoError(t, err)
	RegisterHandlers(engine, NewStore(db), func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserId(r.Context(), author)))
		})
	})
	handler := engine.Handler()

	body, err := json.Marshal(reflectionOn("Philippians 4:6", true, "peace", "prayer"))
	require.NoError(t, err)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reflections", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code)

	var created Reflection
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, author, created.UserId)
	assert.Equal(t, []string{"peace", "prayer"}, created.Themes)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reflections/id/"+created.Id, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reflections/id/"+rest.MustGetNewUUID(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reflections/shared?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var feed []Reflection
	require.NoError(t, json.NewDecoder(w.Body).Decode(&feed))
	assert.Len(t, feed, 1)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reflections?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, err = json.Marshal(reflectionOn("Philippians 4:7", false, "inner peace"))
	require.NoError(t, err)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reflections", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
