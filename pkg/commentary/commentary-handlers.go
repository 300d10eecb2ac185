package commentary

import (
	"context"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/rest"
)

// Generator is satisfied by Service.
type Generator interface {
	Generate(ctx context.Context, verse, content string) (Commentary, error)
}

type RequestData struct {
	Verse   string `json:"verse"`
	Content string `json:"content"`
}

func (data RequestData) Validate() error {
	data.Verse = strings.TrimSpace(data.Verse)
	data.Content = strings.TrimSpace(data.Content)
	return validation.ValidateStruct(&data,
		validation.Field(&data.Verse, validation.Required, validation.Length(1, 100)),
		validation.Field(&data.Content, validation.Required, validation.Length(1, 20000)),
	)
}

type commentaryResponse struct {
	Success  bool       `json:"success"`
	Data     Commentary `json:"data"`
	Fallback bool       `json:"fallback,omitempty"`
}

type testResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RegisterHandlers exposes the commentary; with useFallback, upstream failures yield the canned commentary.
func RegisterHandlers(engine *rest.Engine, generator Generator, completer Completer, useFallback bool) {
	engine.Post("/api/commentary", getCommentary(generator, useFallback))
	engine.Get("/api/test-openai", testCompletion(completer))
}

// getCommentary handles the POST "/api/commentary" route
func getCommentary(generator Generator, useFallback bool) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.Decode[RequestData](request)
		if err == nil {
			err = data.Validate()
		}
		if err != nil {
			JSON.Fail(writer, http.StatusBadRequest, JSON.Failure{Message: "Verse and content are required: " + err.Error()})
			return
		}

		var verse = strings.TrimSpace(data.Verse)
		commentary, err := generator.Generate(request.Context(), verse, strings.TrimSpace(data.Content))
		if err == nil {
			JSON.Ok(writer, commentaryResponse{Success: true, Data: commentary})
			return
		}

		var logger = rest.Logger(request).WithError(err).WithField("verse", verse)
		if useFallback {
			logger.Warn("commentary generation failed, serving the fallback")
			JSON.Ok(writer, commentaryResponse{Success: true, Data: Fallback(verse), Fallback: true})
			return
		}
		logger.Error("commentary generation failed")
		JSON.Fail(writer, http.StatusInternalServerError, JSON.Failure{Message: "Failed to generate commentary"})
	}
}

// testCompletion handles the GET "/api/test-openai" route, checking that the model answers at all
func testCompletion(completer Completer) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		text, err := completer.Complete(request.Context(), Prompt{User: "Say hello in five words or fewer.", MaxTokens: 20})
		if err != nil {
			rest.Logger(request).WithError(err).Error("test completion failed")
			JSON.Fail(writer, http.StatusInternalServerError, JSON.Failure{Message: "Completion failed", Error: err.Error()})
			return
		}
		JSON.Ok(writer, testResponse{Success: true, Message: text})
	}
}
