package rest

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey int

const requestContextKey contextKey = iota

// wrap parses the request and adds a RequestContext instance related to the request.
func (e *Engine) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqUUID, err := uuid.NewV4()
		if err != nil {
			e.baseLogger.WithError(err).Error("can't generate a request UUID")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var ctx = RequestContext{
			ReqUUID: reqUUID,
		}

		// Create a request-specific logger
		ctx.Logger = e.baseLogger.WithFields(logrus.Fields{
			"reqid":     ctx.ReqUUID.String(),
			"remote-ip": r.RemoteAddr,
		})

		// Call the next handler in chain (usually, the handler function for the path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestContextKey, ctx)))
	})
}

// RequestContext is the context of the request, for request-dependent parameters
type RequestContext struct {
	// ReqUUID is the request unique ID
	ReqUUID uuid.UUID

	// Logger is a custom field logger for the request
	Logger logrus.FieldLogger
}

// fallbackLogger serves handlers exercised outside an Engine, as in unit tests
var fallbackLogger logrus.FieldLogger = logrus.StandardLogger()

// Logger returns the request-scoped logger, or the standard logger when the request didn't go through an Engine.
func Logger(r *http.Request) logrus.FieldLogger {
	if ctx, ok := r.Context().Value(requestContextKey).(RequestContext); ok {
		return ctx.Logger
	}
	return fallbackLogger
}
