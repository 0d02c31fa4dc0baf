package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/inkwell-comics/modsvc/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, name, role, status, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.Status,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// ListByRole returns every account with the given role ordered by username.
func (r *UserRepository) ListByRole(ctx context.Context, role types.Role) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY username`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Create inserts a user. A taken username or email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, name, role, status, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Name,
		user.Role,
		user.Status,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

// SetPresence writes Online or Offline unless the account is banned. It
// reports whether the row was changed.
func (r *UserRepository) SetPresence(ctx context.Context, id int, status types.AccountStatus) (bool, error) {
	const query = `
		UPDATE users
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status <> 'banned'`
	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ResetOnline flips every Online account to Offline and returns how many
// rows changed.
func (r *UserRepository) ResetOnline(ctx context.Context) (int64, error) {
	const query = `
		UPDATE users
		SET status = 'offline', updated_at = $1
		WHERE status = 'online'`
	result, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Ban marks the account Banned. Already banned accounts yield ErrConflict.
func (r *UserRepository) Ban(ctx context.Context, id int) (types.User, error) {
	const query = `
		UPDATE users
		SET status = 'banned', updated_at = $1
		WHERE id = $2 AND status <> 'banned'
		RETURNING ` + userColumns
	return r.conditionalUpdate(ctx, id, query, time.Now(), id)
}

// Unban restores a Banned account to Offline. Accounts that are not banned
// yield ErrConflict.
func (r *UserRepository) Unban(ctx context.Context, id int) (types.User, error) {
	const query = `
		UPDATE users
		SET status = 'offline', updated_at = $1
		WHERE id = $2 AND status = 'banned'
		RETURNING ` + userColumns
	return r.conditionalUpdate(ctx, id, query, time.Now(), id)
}

// ChangeRole moves the account from one role to another. A role mismatch
// yields ErrConflict.
func (r *UserRepository) ChangeRole(ctx context.Context, id int, from, to types.Role) (types.User, error) {
	const query = `
		UPDATE users
		SET role = $1, updated_at = $2
		WHERE id = $3 AND role = $4
		RETURNING ` + userColumns
	return r.conditionalUpdate(ctx, id, query, to, time.Now(), id, from)
}

func (r *UserRepository) conditionalUpdate(ctx context.Context, id int, query string, args ...any) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.User{}, err
	}
	return types.User{}, missOrConflict(ctx, r.db, "users", id)
}
