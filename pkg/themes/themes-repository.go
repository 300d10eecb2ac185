package themes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/silktrader/selah/pkg/rest"
	"github.com/silktrader/selah/pkg/storage"
)

// Tally counts how many of a user's reflections carried a theme.
type Tally struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Store struct {
	db *storage.Storage
}

func NewStore(db *storage.Storage) *Store {
	return &Store{db}
}

// Normalise lower cases and trims theme names, dropping blanks and duplicates while preserving order.
func Normalise(names []string) []string {
	var seen = make(map[string]struct{}, len(names))
	var normalised = make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, found := seen[name]; found {
			continue
		}
		seen[name] = struct{}{}
		normalised = append(normalised, name)
	}
	return normalised
}

// Increment bumps the user's tally of each theme, creating missing rows at 1.
// It takes a Querier so that callers can tally within their own transaction.
func Increment(ctx context.Context, q storage.Querier, userId string, names []string) error {
	for _, name := range Normalise(names) {
		id, err := rest.NewID()
		if err != nil {
			return err
		}
		// a single atomic statement; the unique (user_id, name) index rules out duplicate rows
		if _, err = q.ExecContext(ctx, `
			INSERT INTO themes (id, user_id, name, count) VALUES (?, ?, ?, 1)
			ON CONFLICT (user_id, name) DO UPDATE SET count = themes.count + 1`,
			id, userId, name); err != nil {
			return fmt.Errorf("tallying theme %q: %w", name, err)
		}
	}
	return nil
}

// GetTallies returns the user's themes, most frequent first.
func (s *Store) GetTallies(ctx context.Context, userId string) ([]Tally, error) {
	var tallies = make([]Tally, 0)
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, count FROM themes WHERE user_id = ? ORDER BY count DESC, name ASC", userId)
	if err != nil {
		return nil, err
	}
	defer storage.CloseRows(rows)

	for rows.Next() {
		var tally Tally
		if err = rows.Scan(&tally.Name, &tally.Count); err != nil {
			return tallies, err
		}
		tallies = append(tallies, tally)
	}
	return tallies, rows.Err()
}

type userTheme struct {
	user, theme string
}

// Rebuild recomputes every tally from the themes stored with reflections, repairing drifted counts.
// It returns the number of tally rows written.
func (s *Store) Rebuild(ctx context.Context) (int, error) {
	var written int
	err := s.db.Transact(ctx, func(q storage.Querier) error {
		rows, err := q.QueryContext(ctx, "SELECT user_id, themes FROM reflections")
		if err != nil {
			return err
		}

		var counts = make(map[userTheme]int)
		var order []userTheme
		for rows.Next() {
			var user, encoded string
			if err = rows.Scan(&user, &encoded); err != nil {
				storage.CloseRows(rows)
				return err
			}
			var names []string
			if err = json.Unmarshal([]byte(encoded), &names); err != nil {
				storage.CloseRows(rows)
				return fmt.Errorf("decoding themes of a reflection by %s: %w", user, err)
			}
			for _, name := range Normalise(names) {
				var key = userTheme{user, name}
				if _, found := counts[key]; !found {
					order = append(order, key)
				}
				counts[key]++
			}
		}
		if err = rows.Err(); err != nil {
			storage.CloseRows(rows)
			return err
		}
		storage.CloseRows(rows)

		if _, err = q.ExecContext(ctx, "DELETE FROM themes"); err != nil {
			return err
		}
		for _, key := range order {
			if _, err = q.ExecContext(ctx, "INSERT INTO themes (id, user_id, name, count) VALUES (?, ?, ?, ?)",
				rest.MustGetNewUUID(), key.user, key.theme, counts[key]); err != nil {
				return err
			}
		}
		written = len(order)
		return nil
	})
	return written, err
}
