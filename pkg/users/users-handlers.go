package users

import (
	"errors"
	"net/http"

	"github.com/silktrader/selah/pkg/auth"
	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/rest"
)

func RegisterHandlers(engine *rest.Engine, ur UserRepository, authenticate func(http.Handler) http.Handler) {
	engine.Get("/api/profile", getProfile(ur), authenticate)
	engine.Put("/api/profile/name", updateName(ur), authenticate)
}

// getProfile handles the GET "/api/profile" route
func getProfile(ur UserRepository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		user, err := ur.GetUserById(request.Context(), auth.MustGetUserId(request))
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, "Profile not found")
			return
		} else if err != nil {
			rest.Logger(request).WithError(err).Error("can't fetch profile")
			JSON.InternalServerError(writer, errors.New("can't fetch profile"))
			return
		}
		JSON.Ok(writer, user)
	}
}

// updateName handles the PUT "/api/profile/name" route
func updateName(ur UserRepository) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {

		var userId = auth.MustGetUserId(request)

		data, err := JSON.DecodeValidate[UpdateNameData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		if err = ur.UpdateName(request.Context(), userId, data.Name); errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, "Profile not found")
			return
		} else if err != nil {
			rest.Logger(request).WithError(err).Error("can't update profile name")
			JSON.InternalServerError(writer, errors.New("can't update name"))
			return
		}

		JSON.NoContent(writer)
	}
}
