package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"message-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// ErrUsernameTaken is returned when an insert loses a race for a username.
var ErrUsernameTaken = errors.New("username taken")

const pqUniqueViolation = "23505"

// UserRepository stores the local copy of identity provider accounts.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	UsernameTaken(ctx context.Context, username, exceptID string) (bool, error)
	UpsertUser(ctx context.Context, user models.User) error
	DeleteUser(ctx context.Context, userID string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, full_name, username, email, profile_picture, created_at, updated_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UsernameTaken reports whether another user already holds the username.
func (r *UserRepo) UsernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1 AND id<>$2)`, username, exceptID)
	return exists, err
}

// UpsertUser inserts the user or refreshes its profile fields. The username is
// only set on insert; a username already held by another user yields
// ErrUsernameTaken.
func (r *UserRepo) UpsertUser(ctx context.Context, user models.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, full_name, username, email, profile_picture)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, email = EXCLUDED.email,
            profile_picture = EXCLUDED.profile_picture, updated_at = NOW()`,
		user.ID, user.FullName, user.Username, user.Email, user.ProfilePicture)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrUsernameTaken
	}
	return err
}

// DeleteUser removes a user. Missing users are not an error.
func (r *UserRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	return err
}
