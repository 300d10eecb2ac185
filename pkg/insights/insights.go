// Package insights holds short community notes about a verse, visible to every signed in user.
package insights

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

type Insight struct {
	Id         string      `json:"id"`
	UserId     string      `json:"userId"`
	AuthorName string      `json:"authorName"`
	Verse      string      `json:"verse"`
	Content    string      `json:"content"`
	Created    ntime.NTime `json:"created"`
}

type AddInsightData struct {
	Verse   string `json:"verse"`
	Content string `json:"content"`
}

func (data AddInsightData) Validate() error {
	data.Verse = strings.TrimSpace(data.Verse)
	data.Content = strings.TrimSpace(data.Content)
	return validation.ValidateStruct(&data,
		validation.Field(&data.Verse, validation.Required, validation.Length(1, 100)),
		validation.Field(&data.Content, validation.Required, validation.Length(1, 2000)),
	)
}

type Store struct {
	db *storage.Storage
}

func NewStore(db *storage.Storage) *Store {
	return &Store{db}
}

func (s *Store) Add(ctx context.Context, userId string, data AddInsightData) (Insight, error) {
	var insight = Insight{
		Id:      rest.MustGetNewUUID(),
		UserId:  userId,
		Verse:   strings.TrimSpace(data.Verse),
		Content: strings.TrimSpace(data.Content),
		Created: ntime.Now(),
	}
	if err := s.db.Transact(ctx, func(q storage.Querier) error {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO shared_insights (id, user_id, verse, content, created) VALUES (?, ?, ?, ?, ?)",
			insight.Id, insight.UserId, insight.Verse, insight.Content, insight.Created,
		); storage.IsForeignKeyViolation(err) {
			return ErrUnknownUser
		} else if err != nil {
			return err
		}
		return q.QueryRowContext(ctx, "SELECT name FROM users WHERE id = ?", userId).Scan(&insight.AuthorName)
	}); err != nil {
		return Insight{}, err
	}
	return insight, nil
}

// GetRecent returns the latest insights of all users, optionally restricted to a verse.
func (s *Store) GetRecent(ctx context.Context, verse string, limit int) ([]Insight, error) {
	var insights = make([]Insight, 0)
	rows, err := s.db.QueryContext(ctx, `
		SELECT shared_insights.id, user_id, users.name, verse, content, shared_insights.created
		FROM shared_insights JOIN users ON shared_insights.user_id = users.id
		WHERE ? = '' OR verse = ?
		ORDER BY shared_insights.created DESC LIMIT ?`, verse, verse, limit)
	if err != nil {
		return nil, err
	}
	defer storage.CloseRows(rows)

	for rows.Next() {
		var insight Insight
		if err = rows.Scan(&insight.Id, &insight.UserId, &insight.AuthorName, &insight.Verse,
			&insight.Content, &insight.Created); err != nil {
			return insights, err
		}
		insights = append(insights, insight)
	}
	return insights, rows.Err()
}

func RegisterHandlers(engine *rest.Engine, store *Store, authenticate func(http.Handler) http.Handler) {
	engine.Post("/api/insights", addInsight(store), authenticate)
	engine.Get("/api/insights", getInsights(store), authenticate)
}

// addInsight handles the POST "/api/insights" route
func addInsight(store *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		data, err := JSON.DecodeValidate[AddInsightData](request)
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}

		insight, err := store.Add(request.Context(), auth.MustGetUserId(request), data)
		if errors.Is(err, ErrUnknownUser) {
			JSON.NotFound(writer, "Profile not found")
			return
		} else if err != nil {
			rest.Logger(request).WithError(err).Error("can't share insight")
			JSON.InternalServerError(writer, errors.New("can't share insight"))
			return
		}
		JSON.Created(writer, insight)
	}
}

// getInsights handles the GET "/api/insights" route; `verse` and `limit` are optional
func getInsights(store *Store) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var query = request.URL.Query()
		limit, err := rest.ParseLimit(query.Get("limit"))
		if err != nil {
			JSON.ValidationError(writer, err)
			return
		}
		insights, err := store.GetRecent(request.Context(), strings.TrimSpace(query.Get("verse")), limit)
		if err != nil {
			rest.Logger(request).WithError(err).Error("can't fetch insights")
			JSON.InternalServerError(writer, errors.New("can't fetch insights"))
			return
		}
		JSON.Ok(writer, insights)
	}
}
