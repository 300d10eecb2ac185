package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/silktrader/selah/pkg/auth"
	"github.com/silktrader/selah/pkg/ntime"
	"github.com/silktrader/selah/pkg/storage"
)

type UserRepository interface {
	GetUserById(ctx context.Context, id string) (User, error)
	EnsureUser(ctx context.Context, id, email, name string) (user User, created bool, err error)
	UpdateName(ctx context.Context, userId string, newName string) error
}

type userRepository struct {
	db *storage.Storage
}

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email is already registered")
)

func NewRepository(db *storage.Storage) UserRepository {
	return &userRepository{db}
}

// GetUserById either returns a user matching the id, or an error (along with an ignorable empty struct).
func (ur *userRepository) GetUserById(ctx context.Context, id string) (User, error) {
	return ur.getUser(ctx, "SELECT id, name, email, created FROM users WHERE id = ?", id)
}

func (ur *userRepository) getUser(ctx context.Context, query string, arg string) (user User, err error) {
	var email sql.NullString
	// if the query selects no rows, *Row's `Scan` will return ErrNoRows
	if err = ur.db.QueryRowContext(ctx, query, arg).Scan(&user.Id, &user.Name, &email, &user.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.Email = email.String
	return user, nil
}

// EnsureUser inserts the user unless a row with the same id exists already, in which case the stored row wins.
// An email belonging to a different id yields ErrEmailTaken.
func (ur *userRepository) EnsureUser(ctx context.Context, id, email, name string) (User, bool, error) {
	var now = ntime.Now()
	var nullableEmail = sql.NullString{String: normaliseEmail(email), Valid: email != ""}

	result, err := ur.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		id, name, nullableEmail, now)
	if storage.IsUniqueViolation(err) {
		return User{}, false, ErrEmailTaken
	}
	if err != nil {
		return User{}, false, fmt.Errorf("couldn't add user %q: %w", id, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return User{}, false, err
	}
	if inserted == 1 {
		return User{Id: id, Name: name, Email: nullableEmail.String, Created: now}, true, nil
	}

	user, err := ur.GetUserById(ctx, id)
	return user, false, err
}

func (ur *userRepository) UpdateName(ctx context.Context, userId string, newName string) error {
	result, err := ur.db.ExecContext(ctx, "UPDATE users SET name = ? WHERE id = ?", strings.TrimSpace(newName), userId)
	if err != nil {
		return err
	}
	if updated, err := result.RowsAffected(); err != nil {
		return err
	} else if updated == 0 {
		return ErrNotFound
	}
	return nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AuthEnsurer lets authentication flows create profiles without depending on this package.
func AuthEnsurer(ur UserRepository) auth.UserEnsurer {
	return auth.EnsureFunc(func(ctx context.Context, id, email, name string) error {
		if _, _, err := ur.EnsureUser(ctx, id, email, name); errors.Is(err, ErrEmailTaken) {
			return auth.ErrEmailTaken
		} else if err != nil {
			return err
		}
		return nil
	})
}
