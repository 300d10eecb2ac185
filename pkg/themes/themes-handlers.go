package themes

import (
	"errors"
	"net/http"

	"github.com/silktrader/selah/pkg/auth"
	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/rest"
)

func RegisterHandlers(engine *rest.Engine, store *Store, authenticate func(http.Handler) http.Handler) {
	engine.Get("/api/themes", getTallies(store), authenticate)
}

// getTallies handles the GET "/api/themes" route
func getTallies(store *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		tallies, err := store.GetTallies(request.Context(), auth.MustGetUserId(request))
		if err != nil {
			rest.Logger(request).WithError(err).Error("can't fetch theme tallies")
			JSON.InternalServerError(writer, errors.New("can't fetch themes"))
			return
		}
		JSON.Ok(writer, tallies)
	}
}
