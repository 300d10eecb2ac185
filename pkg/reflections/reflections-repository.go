package reflections

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/silktrader/selah/pkg/likes"
	"github.com/silktrader/selah/pkg/ntime"
	"github.com/silktrader/selah/pkg/rest"
	"github.com/silktrader/selah/pkg/storage"
	"github.com/silktrader/selah/pkg/themes"
)

type Storer interface {
	Add(ctx context.Context, userId string, data AddReflectionData) (Reflection, error)
	Get(ctx context.Context, reflectionId, requesterId string) (Reflection, error)
	GetByUser(ctx context.Context, userId string, limit int) ([]Reflection, error)
	GetShared(ctx context.Context, limit int) ([]Reflection, error)
}

type Store struct {
	db *storage.Storage
}

func NewStore(db *storage.Storage) *Store {
	return &Store{db}
}

// Add saves the reflection and tallies its themes for the author; either both happen or neither does.
func (s *Store) Add(ctx context.Context, userId string, data AddReflectionData) (Reflection, error) {
	var reflection = Reflection{
		Id:        rest.MustGetNewUUID(),
		UserId:    userId,
		Verse:     strings.TrimSpace(data.Verse),
		VerseText: data.VerseText,
		Question:  strings.TrimSpace(data.Question),
		Answer:    strings.TrimSpace(data.Answer),
		Insight:   data.Insight,
		Shared:    data.Shared,
		Themes:    themes.Normalise(data.Themes),
		LikedBy:   make([]string, 0),
		Created:   ntime.Now(),
	}

	encoded, err := json.Marshal(reflection.Themes)
	if err != nil {
		return Reflection{}, err
	}

	err = s.db.Transact(ctx, func(q storage.Querier) error {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO reflections (id, user_id, verse, verse_text, question, answer, insight, shared, themes, likes, created)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			reflection.Id, reflection.UserId, reflection.Verse, nullable(reflection.VerseText), reflection.Question,
			reflection.Answer, nullable(reflection.Insight), reflection.Shared, string(encoded), reflection.Created,
		); storage.IsForeignKeyViolation(err) {
			return ErrUnknownUser
		} else if err != nil {
			return err
		}
		return themes.Increment(ctx, q, userId, reflection.Themes)
	})
	if err != nil {
		return Reflection{}, err
	}
	return reflection, nil
}

const selectReflections = `
	SELECT reflections.id, user_id, users.name, verse, COALESCE(verse_text, ''), question, answer,
		COALESCE(insight, ''), shared, themes, likes, reflections.created
	FROM reflections JOIN users ON reflections.user_id = users.id`

// Get returns a reflection to its author, or to anyone when it's shared.
func (s *Store) Get(ctx context.Context, reflectionId, requesterId string) (Reflection, error) {
	var found, err = s.query(ctx,
		selectReflections+" WHERE reflections.id = ? AND (shared OR user_id = ?)", reflectionId, requesterId)
	if err != nil {
		return Reflection{}, err
	}
	if len(found) == 0 {
		return Reflection{}, ErrNotFound
	}
	return found[0], nil
}

// GetByUser returns the user's reflections, shared or not, newest first.
func (s *Store) GetByUser(ctx context.Context, userId string, limit int) ([]Reflection, error) {
	return s.query(ctx, selectReflections+" WHERE user_id = ? ORDER BY reflections.created DESC LIMIT ?", userId, limit)
}

// GetShared returns the community feed, newest first.
func (s *Store) GetShared(ctx context.Context, limit int) ([]Reflection, error) {
	return s.query(ctx, selectReflections+" WHERE shared ORDER BY reflections.created DESC LIMIT ?", limit)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Reflection, error) {
	var reflections = make([]Reflection, 0)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer storage.CloseRows(rows)

	var ids []string
	for rows.Next() {
		var reflection Reflection
		var encoded string
		if err = rows.Scan(&reflection.Id, &reflection.UserId, &reflection.AuthorName, &reflection.Verse,
			&reflection.VerseText, &reflection.Question, &reflection.Answer, &reflection.Insight,
			&reflection.Shared, &encoded, &reflection.Likes, &reflection.Created); err != nil {
			return reflections, err
		}
		if err = json.Unmarshal([]byte(encoded), &reflection.Themes); err != nil {
			return reflections, fmt.Errorf("decoding themes of reflection %s: %w", reflection.Id, err)
		}
		if reflection.Themes == nil {
			reflection.Themes = make([]string, 0)
		}
		reflections = append(reflections, reflection)
		ids = append(ids, reflection.Id)
	}
	if err = rows.Err(); err != nil {
		return reflections, err
	}
	// release the connection before querying again, SQLite databases have only one
	storage.CloseRows(rows)

	likedBy, err := likes.LikedBy(ctx, s.db, ids...)
	if err != nil {
		return reflections, err
	}
	for i := range reflections {
		if reflections[i].LikedBy = likedBy[reflections[i].Id]; reflections[i].LikedBy == nil {
			reflections[i].LikedBy = make([]string, 0)
		}
	}
	return reflections, nil
}

// nullable stores absent optional text as NULL
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
