package reflections

import (
	"errors"
	"net/http"

	"github.com/silktrader/selah/pkg/auth"
	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/rest"
)

func RegisterHandlers(engine *rest.Engine, store Storer, authenticate func(http.Handler) http.Handler) {
	engine.Post("/api/reflections", addReflection(store), authenticate)
	engine.Get("/api/reflections", getOwnReflections(store), authenticate)
	engine.Get("/api/reflections/shared", getSharedReflections(store), authenticate)
	engine.Get("/api/reflections/id/:id", getReflection(store), authenticate)
}

// addReflection handles the POST "/api/reflections" route
func addReflection(store Storer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[AddReflectionData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		reflection, err := store.Add(request.Context(), auth.MustGetUserId(request), data)
		if errors.Is(err, ErrUnknownUser) {
			JSON.NotFound(writer, "Profile not found")
			return
		} else if err != nil {
			rest.Logger(request).WithError(err).Error("can't save reflection")
			JSON.InternalServerError(writer, errors.New("can't save reflection"))
			return
		}
		JSON.Created(writer, reflection)
	}
}

// getOwnReflections handles the GET "/api/reflections" route
func getOwnReflections(store Storer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		limit, err := rest.ParseLimit(request.URL.Query().Get("limit"))
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		reflections, err := store.GetByUser(request.Context(), auth.MustGetUserId(request), limit)
		if err != nil {
			rest.Logger(request).WithError(err).Error("can't fetch reflections")
			JSON.InternalServerError(writer, errors.New("can't fetch reflections"))
			return
		}
		JSON.Ok(writer, reflections)
	}
}

// getSharedReflections handles the GET "/api/reflections/shared" route
func getSharedReflections(store Storer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		limit, err := rest.ParseLimit(request.URL.Query().Get("limit"))
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		reflections, err := store.GetShared(request.Context(), limit)
		if err != nil {
			rest.Logger(request).WithError(err).Error("can't fetch shared reflections")
			JSON.InternalServerError(writer, errors.New("can't fetch shared reflections"))
			return
		}
		JSON.Ok(writer, reflections)
	}
}

// getReflection handles the GET "/api/reflections/id/:id" route
func getReflection(store Storer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var reflectionId = rest.GetParam(request, "id")
		if !rest.IsUUID(reflectionId) {
			JSON.NotFound(writer, "Reflection not found")
			return
		}

		reflection, err := store.Get(request.Context(), reflectionId, auth.MustGetUserId(request))
		if errors.Is(err, ErrNotFound) {
			JSON.NotFound(writer, "Reflection not found")
			return
		} else if err != nil {
			rest.Logger(request).WithError(err).Error("can't fetch reflection")
			JSON.InternalServerError(writer, errors.New("can't fetch reflection"))
			return
		}
		JSON.Ok(writer, reflection)
	}
}
