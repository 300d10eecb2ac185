package bible

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/rest"
)

// Passager is satisfied by Client.
type Passager interface {
	Passage(ctx context.Context, reference string) (json.RawMessage, error)
}

type VerseData struct {
	Verse string `json:"verse"`
}

func (data VerseData) Validate() error {
	data.Verse = strings.TrimSpace(data.Verse)
	return validation.ValidateStruct(&data, validation.Field(&data.Verse, validation.Required, validation.Length(1, 100)))
}

type passageResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type upstreamDetails struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func RegisterHandlers(engine *rest.Engine, passages Passager) {
	engine.Post("/api/verse", getPassage(passages))
}

// getPassage handles the POST "/api/verse" route
func getPassage(passages Passager) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.Decode[VerseData](request)
		if err == nil {
			err = data.Validate()
		}
		if err != nil {
			JSON.Fail(writer, http.StatusBadRequest, JSON.Failure{Message: "A verse reference is required: " + err.Error()})
			return
		}

		passage, err := passages.Passage(request.Context(), strings.TrimSpace(data.Verse))
		if err == nil {
			JSON.Ok(writer, passageResponse{Success: true, Data: passage})
			return
		}

		var logger = rest.Logger(request).WithError(err).WithField("verse", data.Verse)
		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) {
			logger.Warn("bible provider refused the lookup")
			JSON.Fail(writer, http.StatusInternalServerError, JSON.Failure{
				Message: "Failed to fetch verse",
				Error:   upstreamErr.StatusText,
				Details: upstreamDetails{Status: upstreamErr.Status, Message: upstreamErr.Message},
			})
			return
		}
		logger.Error("bible lookup failed")
		JSON.Fail(writer, http.StatusInternalServerError, JSON.Failure{Message: "Failed to fetch verse", Error: "upstream unavailable"})
	}
}
