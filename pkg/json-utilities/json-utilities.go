package json_utilities

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

var errEncoding = errors.New("error while encoding response")

// maximum accepted request body, generous for reflections
const maxBodyBytes = 1 << 20

type httpError struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func newHttpError(err error) *httpError {
	return &httpError{err.Error(), time.Now()}
}

type httpMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func newHttpMessage(message string) *httpMessage {
	return &httpMessage{message, time.Now()}
}

// Failure is the uniform `{success: false, ...}` envelope of the proxy routes.
type Failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ErrorBody is the `{error: ...}` shape used by the like route.
type ErrorBody struct {
	Error string `json:"error"`
}

func Created(writer http.ResponseWriter, payload interface{}) {
	encodeJSON(writer, http.StatusCreated, payload)
}

func Ok(writer http.ResponseWriter, payload interface{}) {
	encodeJSON(writer, http.StatusOK, payload)
}

func NoContent(writer http.ResponseWriter) {
	// no content type header needed
	writer.WriteHeader(http.StatusNoContent)
}

func NotFound(writer http.ResponseWriter, message string) {
	encodeJSON(writer, http.StatusNotFound, newHttpMessage(message))
}

// InternalServerError hides the cause from clients; callers log it beforehand.
func InternalServerError(writer http.ResponseWriter, err error) {
	encoderJSONError(writer, http.StatusInternalServerError, err)
}

func ValidationError(writer http.ResponseWriter, err error) {
	encoderJSONError(writer, http.StatusBadRequest, err)
}

// Fail writes a `{success: false}` envelope with the given status.
func Fail(writer http.ResponseWriter, status int, failure Failure) {
	failure.Success = false
	encodeJSON(writer, status, failure)
}

// Error writes an `{error: message}` body with the given status.
func Error(writer http.ResponseWriter, status int, message string) {
	encodeJSON(writer, status, ErrorBody{message})
}

func Status(writer http.ResponseWriter, status int, payload interface{}) {
	encodeJSON(writer, status, payload)
}

func encodeJSON(writer http.ResponseWriter, status int, payload interface{}) {
	if payload == nil {
		writer.WriteHeader(status)
		return
	}
	// encode first, the status line can't be amended once written
	body, err := json.Marshal(payload)
	if err != nil {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(newHttpError(errEncoding))
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_, _ = writer.Write(append(body, '\n'))
}

func encoderJSONError(writer http.ResponseWriter, status int, err error) {
	encodeJSON(writer, status, newHttpError(err))
}

// Decode reads a JSON request body into a T, refusing oversized payloads.
func Decode[T any](request *http.Request) (data T, err error) {
	var body = io.LimitReader(request.Body, maxBodyBytes)
	if err = json.NewDecoder(body).Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return data, errors.New("empty request body")
		}
		return data, err
	}
	return data, nil
}

func DecodeValidate[T Validator](request *http.Request) (data T, err error) {
	if data, err = Decode[T](request); err != nil {
		return data, err
	}
	return data, data.Validate()
}

type Validator interface {
	Validate() error
}
