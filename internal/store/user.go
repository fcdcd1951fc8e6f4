package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/userhub/apiserver/types"
)

// ProfileUpdate describes a partial update of a user's mutable profile
// fields. Nil fields are left untouched.
type ProfileUpdate struct {
	Name   *string
	Age    *int
	Gender *string
	Image  *string
}

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, email, name, age, gender, image, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, email, name, age, gender, image, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// Create inserts the user, relying on the unique email constraint for
// duplicate detection. The insert and the uniqueness check are a single
// statement, so concurrent sign-ups with the same email cannot both succeed.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, name, age, gender, image, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Name,
		user.Age,
		user.Gender,
		user.Image,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile applies the provided fields to the user's row and returns
// the updated record. Fields left nil in the update are not touched.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int, update ProfileUpdate) (types.User, error) {
	assignments := []string{}
	args := []any{}

	appendSet := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		appendSet("name", *update.Name)
	}
	if update.Age != nil {
		appendSet("age", *update.Age)
	}
	if update.Gender != nil {
		appendSet("gender", *update.Gender)
	}
	if update.Image != nil {
		appendSet("image", *update.Image)
	}
	if len(assignments) == 0 {
		return r.GetByID(ctx, id)
	}
	appendSet("updated_at", time.Now())

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE users
		SET %s
		WHERE id = $%d
		RETURNING id, email, name, age, gender, image, password_hash, created_at, updated_at`,
		strings.Join(assignments, ", "), len(args))

	return r.scanUser(r.db.QueryRowContext(ctx, query, args...))
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Age,
		&user.Gender,
		&user.Image,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}
