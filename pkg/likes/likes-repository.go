package likes

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/silktrader/selah/pkg/ntime"
	"github.com/silktrader/selah/pkg/storage"
)

var (
	ErrNotFound    = errors.New("reflection not found")
	ErrUnknownUser = errors.New("unknown user")
)

// Result is the state of a reflection's likes after a toggle.
type Result struct {
	Likes   int      `json:"likes"`
	LikedBy []string `json:"likedBy"`
}

type Store struct {
	db *storage.Storage
}

func NewStore(db *storage.Storage) *Store {
	return &Store{db}
}

/*
Toggle records or withdraws a user's like and returns the resulting count.

The liked-by set is authoritative: the counter only moves when a row is actually inserted in or removed from
reflection_likes, within the same transaction, so that repeated requests are idempotent and concurrent ones
can't lose updates. Reflections that aren't shared can only be liked by their authors.
*/
func (s *Store) Toggle(ctx context.Context, userId, reflectionId string, like bool) (Result, error) {
	var result Result
	err := s.db.Transact(ctx, func(q storage.Querier) error {
		var current int
		if err := q.QueryRowContext(ctx,
			"SELECT likes FROM reflections WHERE id = ? AND (shared OR user_id = ?)", reflectionId, userId,
		).Scan(&current); errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		var changed int64
		var err error
		if like {
			changed, err = affected(q.ExecContext(ctx, `
				INSERT INTO reflection_likes (reflection_id, user_id, created) VALUES (?, ?, ?)
				ON CONFLICT (reflection_id, user_id) DO NOTHING`,
				reflectionId, userId, ntime.Now()))
			if storage.IsForeignKeyViolation(err) {
				return ErrUnknownUser
			}
			if err == nil && changed == 1 {
				_, err = q.ExecContext(ctx, "UPDATE reflections SET likes = likes + 1 WHERE id = ?", reflectionId)
			}
		} else {
			changed, err = affected(q.ExecContext(ctx,
				"DELETE FROM reflection_likes WHERE reflection_id = ? AND user_id = ?", reflectionId, userId))
			if err == nil && changed == 1 {
				// clamped, the counter must never go negative
				_, err = q.ExecContext(ctx,
					"UPDATE reflections SET likes = CASE WHEN likes > 0 THEN likes - 1 ELSE 0 END WHERE id = ?",
					reflectionId)
			}
		}
		if err != nil {
			return err
		}

		if err = q.QueryRowContext(ctx, "SELECT likes FROM reflections WHERE id = ?", reflectionId).Scan(&result.Likes); err != nil {
			return err
		}
		likedBy, err := LikedBy(ctx, q, reflectionId)
		if err != nil {
			return err
		}
		result.LikedBy = likedBy[reflectionId]
		if result.LikedBy == nil {
			result.LikedBy = make([]string, 0)
		}
		return nil
	})
	return result, err
}

// LikedBy maps each of the given reflections to the ids of the users who liked it, earliest first.
// Reflections without likes are absent from the map.
func LikedBy(ctx context.Context, q storage.Querier, reflectionIds ...string) (map[string][]string, error) {
	var likedBy = make(map[string][]string, len(reflectionIds))
	if len(reflectionIds) == 0 {
		return likedBy, nil
	}

	var args = make([]any, len(reflectionIds))
	for i, id := range reflectionIds {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `
		SELECT reflection_id, user_id FROM reflection_likes
		WHERE reflection_id IN (?`+strings.Repeat(", ?", len(reflectionIds)-1)+`)
		ORDER BY created ASC, user_id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer storage.CloseRows(rows)

	var reflectionId, userId string
	for rows.Next() {
		if err = rows.Scan(&reflectionId, &userId); err != nil {
			return likedBy, err
		}
		likedBy[reflectionId] = append(likedBy[reflectionId], userId)
	}
	return likedBy, rows.Err()
}

// Reconcile realigns every counter with its liked-by set and returns how many reflections were corrected.
func (s *Store) Reconcile(ctx context.Context) (int64, error) {
	return affected(s.db.ExecContext(ctx, `
		UPDATE reflections
		SET likes = (SELECT count(*) FROM reflection_likes WHERE reflection_id = reflections.id)
		WHERE likes <> (SELECT count(*) FROM reflection_likes WHERE reflection_id = reflections.id)`))
}

func affected(result sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
