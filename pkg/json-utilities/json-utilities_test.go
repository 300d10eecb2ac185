package json_utilities

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verseData struct {
	Verse string `json:"verse"`
}

func (data verseData) Validate() error {
	if strings.TrimSpace(data.Verse) == "" {
		return errors.New("verse: cannot be blank")
	}
	return nil
}

func request(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
}

func TestDecodeValidate(t *testing.T) {
	data, err := DecodeValidate[verseData](request(`{"verse":"Psalm 46:10"}`))
	require.NoError(t, err)
	assert.Equal(t, "Psalm 46:10", data.Verse)

	_, err = DecodeValidate[verseData](request(`{"verse":" "}`))
	assert.EqualError(t, err, "verse: cannot be blank")

	_, err = DecodeValidate[verseData](request(``))
	assert.EqualError(t, err, "empty request body")

	_, err = Decode[verseData](request(`{"verse":`))
	assert.Error(t, err)

	_, err = Decode[verseData](request(`{"verse":"` + strings.Repeat("a", maxBodyBytes) + `"}`))
	assert.Error(t, err)
}

func TestEnvelopes(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(w, http.StatusBadGateway, Failure{Success: true, Message: "Failed to fetch verse", Details: map[string]int{"status": 404}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"message":"Failed to fetch verse","details":{"status":404}}`, w.Body.String())

	w = httptest.NewRecorder()
	Error(w, http.StatusForbidden, "Forbidden")
	assert.JSONEq(t, `{"error":"Forbidden"}`, w.Body.String())

	w = httptest.NewRecorder()
	ValidationError(w, errors.New("limit must be a number"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "limit must be a number", body["error"])

	w = httptest.NewRecorder()
	NoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestEncodingFailure(t *testing.T) {
	w := httptest.NewRecorder()
	Ok(w, map[string]any{"broken": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), errEncoding.Error())
}
