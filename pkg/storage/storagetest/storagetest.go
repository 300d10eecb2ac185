// Package storagetest provides in-memory databases and fixtures for tests.
package storagetest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/silktrader/selah/pkg/rest"
	"github.com/silktrader/selah/pkg/storage"
)

// Logger discards everything; tests assert on behaviour, not on log lines.
func Logger() *logrus.Logger {
	var logger = logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// New creates an in-memory SQLite database, closed when the test ends.
func New(t *testing.T) *storage.Storage {
	t.Helper()
	db, err := storage.New(Logger(), storage.Config{Driver: storage.SQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// AddUser inserts a user row and returns its id.
func AddUser(t *testing.T, db *storage.Storage, name string) string {
	t.Helper()
	var id = rest.MustGetNewUUID()
	_, err := db.ExecContext(context.Background(),
		"INSERT INTO users (id, name, email, created) VALUES (?, ?, ?, ?)",
		id, name, name+"@example.com", time.Now().UTC())
	require.NoError(t, err)
	return id
}

// AddReflection inserts a reflection with the given like count and returns its id.
func AddReflection(t *testing.T, db *storage.Storage, userID string, shared bool, likes int) string {
	t.Helper()
	var id = rest.MustGetNewUUID()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO reflections (id, user_id, verse, question, answer, shared, themes, likes, created)
		VALUES (?, ?, 'John 3:16', 'What does love cost?', 'Everything.', ?, '[]', ?, ?)`,
		id, userID, shared, likes, time.Now().UTC())
	require.NoError(t, err)
	return id
}
