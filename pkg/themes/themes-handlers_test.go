package themes

import (
	"context"
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

func TestGetTalliesRoute(t *testing.T) {
	db := storagetest.New(t)
	user := storagetest.AddUser(t, db, "reader")
	require.NoError(t, Increment(context.Background(), db, user, []string{"grace", "mercy"}))
	require.NoError(t, Increment(context.Background(), db, user, []string{"grace"}))

	engine, err := rest.New(rest.Config{Logger: storagetest.Logger()})
	require.NoError(t, err)
	RegisterHandlers(engine, NewStore(db), func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserId(r.Context(), user)))
		})
	})

	w := httptest.NewRecorder()
	engine.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/themes", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var tallies []Tally
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tallies))
	require.Len(t, tallies, 2)
	assert.Equal(t, "grace", tallies[0].Name)
	assert.Equal(t, 2, tallies[0].Count)
}
