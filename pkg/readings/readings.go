// Package readings keeps the append-only log of verses each user studied.
package readings

import (
	"context"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/silktrader/selah/pkg/auth"
	JSON "github.com/silktrader/selah/pkg/json-utilities"
	"github.com/silktrader/selah/pkg/ntime"
	"github.com/silktrader/selah/pkg/rest"
	"github.com/silktrader/selah/pkg/storage"
)

var ErrUnknownUser = errors.New("unknown user")

type Entry struct {
	Id      string      `json:"id"`
	Verse   string      `json:"verse"`
	Created ntime.NTime `json:"created"`
}

type LogData struct {
	Verse string `json:"verse"`
}

func (data LogData) Validate() error {
	data.Verse = strings.TrimSpace(data.Verse)
	return validation.ValidateStruct(&data, validation.Field(&data.Verse, validation.Required, validation.Length(1, 100)))
}

type Store struct {
	db *storage.Storage
}

func NewStore(db *storage.Storage) *Store {
	return &Store{db}
}

func (s *Store) Log(ctx context.Context, userId, verse string) (Entry, error) {
	var entry = Entry{Id: rest.MustGetNewUUID(), Verse: strings.TrimSpace(verse), Created: ntime.Now()}
	_, err := s.db.ExecContext(ctx, "INSERT INTO reading_log (id, user_id, verse, created) VALUES (?, ?, ?, ?)",
		entry.Id, userId, entry.Verse, entry.Created)
	if storage.IsForeignKeyViolation(err) {
		return Entry{}, ErrUnknownUser
	}
	return entry, err
}

// GetLog returns the user's readings, newest first.
func (s *Store) GetLog(ctx context.Context, userId string, limit int) ([]Entry, error) {
	var entries = make([]Entry, 0)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, verse, created FROM reading_log WHERE user_id = ? ORDER BY created DESC LIMIT ?", userId, limit)
	if err != nil {
		return nil, err
	}
	defer storage.CloseRows(rows)

	for rows.Next() {
		var entry Entry
		if err = rows.Scan(&entry.Id, &entry.Verse, &entry.Created); err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func RegisterHandlers(engine *rest.Engine, store *Store, authenticate func(http.Handler) http.Handler) {
	engine.Post("/api/readings", logReading(store), authenticate)
	engine.Get("/api/readings", getLog(store), authenticate)
}

// logReading handles the POST "/api/readings" route
func logReading(store *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[LogData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		entry, err := store.Log(request.Context(), auth.MustGetUserId(request), data.Verse)
		if errors.Is(err, ErrUnknownUser) {
			JSON.NotFound(writer, "Profile not found")
			return
		} else if err != nil {
			rest.Logger(request).WithError(err).Error("can't log reading")
			JSON.InternalServerError(writer, errors.New("can't log reading"))
			return
		}
		JSON.Created(writer, entry)
	}
}

// getLog handles the GET "/api/readings" route
func getLog(store *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		limit, err := rest.ParseLimit(request.URL.Query().Get("limit"))
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		entries, err := store.GetLog(request.Context(), auth.MustGetUserId(request), limit)
		if err != nil {
			rest.Logger(request).WithError(err).Error("can't fetch readings")
			JSON.InternalServerError(writer, errors.New("can't fetch readings"))
			return
		}
		JSON.Ok(writer, entries)
	}
}
