package repository

import (
	"context"
	"time"

	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, avatar_url, is_online, last_seen, created_at, updated_at`

func scanUser(row pgx.Row, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.IsOnline,
		&user.LastSeen,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, avatar_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_online, last_seen, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, user.Username, user.Email, user.PasswordHash, user.AvatarURL).
		Scan(&user.ID, &user.IsOnline, &user.LastSeen, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1
	`
	var user models.User
	if err := scanUser(r.db.QueryRow(ctx, query, email), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	var user models.User
	if err := scanUser(r.db.QueryRow(ctx, query, id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile applies the non-nil fields of the update and returns the
// fresh row.
func (r *UserRepository) UpdateProfile(
	ctx context.Context,
	id int64,
	update models.UserUpdate,
) (*models.User, error) {
	query := `
		UPDATE users
		SET username   = COALESCE($2, username),
		    avatar_url = COALESCE($3, avatar_url),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns + `
	`
	var user models.User
	if err := scanUser(r.db.QueryRow(ctx, query, id, update.Username, update.AvatarURL), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SetPresence records the derived online state. last_seen is only written
// on the offline transition so it keeps the moment the user was last
// connected.
func (r *UserRepository) SetPresence(ctx context.Context, id int64, online bool, lastSeen time.Time) error {
	if online {
		_, err := r.db.Exec(ctx, `
			UPDATE users
			SET is_online = TRUE, updated_at = NOW()
			WHERE id = $1
		`, id)
		return err
	}

	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET is_online = FALSE, last_seen = $2, updated_at = NOW()
		WHERE id = $1
	`, id, lastSeen)
	return err
}

// ListContacts returns every other user, online first.
func (r *UserRepository) ListContacts(ctx context.Context, selfID int64) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id <> $1
		ORDER BY is_online DESC, last_seen DESC NULLS LAST, username ASC
	`
	rows, err := r.db.Query(ctx, query, selfID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}
