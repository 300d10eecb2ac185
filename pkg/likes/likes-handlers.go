package likes

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/silktrader/selah/pkg/auth"
	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/rest"
)

type LikeData struct {
	UserId       string `json:"userId"`
	ReflectionId string `json:"reflectionId"`
	Like         *bool  `json:"like"`
}

func (data LikeData) Validate() error {
	return validation.ValidateStruct(&data,
		validation.Field(&data.UserId, validation.Required, is.UUID),
		validation.Field(&data.ReflectionId, validation.Required, is.UUID),
		validation.Field(&data.Like, validation.NotNil),
	)
}

type likeResponse struct {
	Success bool     `json:"success"`
	Likes   int      `json:"likes"`
	LikedBy []string `json:"likedBy"`
}

func RegisterHandlers(engine *rest.Engine, store *Store, authenticate func(http.Handler) http.Handler) {
	engine.Post("/api/like", toggleLike(store), authenticate)
}

// toggleLike handles the POST "/api/like" route
func toggleLike(store *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		// malformed identifiers are rejected before any query
		data, err := JSON.DecodeValidate[LikeData](request)
		if err != nil {
			JSON.Error(writer, http.StatusBadRequest, err.Error())
			return
		}

		// users can only like on their own behalf
		if data.UserId != auth.MustGetUserId(request) {
			JSON.Error(writer, http.StatusForbidden, "Can't like on behalf of another user")
			return
		}

		result, err := store.Toggle(request.Context(), data.UserId, data.ReflectionId, *data.Like)
		switch {
		case err == nil:
			JSON.Ok(writer, likeResponse{Success: true, Likes: result.Likes, LikedBy: result.LikedBy})
		case errors.Is(err, ErrNotFound):
			JSON.Error(writer, http.StatusNotFound, "Reflection not found")
		case errors.Is(err, ErrUnknownUser):
			JSON.Error(writer, http.StatusBadRequest, "Unknown user")
		default:
			rest.Logger(request).WithError(err).WithField("reflection", data.ReflectionId).Error("can't update likes")
			JSON.Error(writer, http.StatusInternalServerError, "Failed to update the like count")
		}
	}
}
