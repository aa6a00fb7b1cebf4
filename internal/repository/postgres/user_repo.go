package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, pwd_hash, salt_auth)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.PwdHash, u.SaltAuth)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `
SELECT id, username, pwd_hash, salt_auth, created_at
FROM users WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
SELECT id, username, pwd_hash, salt_auth, created_at
FROM users WHERE username=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, username))
}

func (r *UserRepo) scanOne(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.PwdHash, &u.SaltAuth, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByIDs resolves identities in a single query.
func (r *UserRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.UserRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `SELECT id, username FROM users WHERE id = ANY($1)`
	return queryRefs(ctx, r.db.Pool, q, ids)
}

// Search matches usernames containing term, case-insensitively.
func (r *UserRepo) Search(ctx context.Context, term string, limit int) ([]model.UserRef, error) {
	const q = `
SELECT id, username FROM users
WHERE username ILIKE '%' || $1 || '%'
ORDER BY username
LIMIT $2`
	return queryRefs(ctx, r.db.Pool, q, escapeLike(term), limit)
}

// List returns every user ordered by registration time.
func (r *UserRepo) List(ctx context.Context) ([]model.UserRef, error) {
	const q = `SELECT id, username FROM users ORDER BY created_at, username`
	return queryRefs(ctx, r.db.Pool, q)
}

// SetPicture upserts the user's profile picture.
func (r *UserRepo) SetPicture(ctx context.Context, user uuid.UUID, pic model.Attachment) error {
	const q = `
INSERT INTO profile_pictures (user_id, data, mime_type)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET data = EXCLUDED.data, mime_type = EXCLUDED.mime_type, updated_at = now()`
	_, err := r.db.Pool.Exec(ctx, q, user, pic.Data, pic.MimeType)
	if isForeignKeyViolation(err) {
		return errs.ErrUserNotFound
	}
	return err
}

// GetPicture loads the user's profile picture.
func (r *UserRepo) GetPicture(ctx context.Context, user uuid.UUID) (model.Attachment, error) {
	const q = `SELECT data, mime_type FROM profile_pictures WHERE user_id=$1`
	var pic model.Attachment
	if err := r.db.Pool.QueryRow(ctx, q, user).Scan(&pic.Data, &pic.MimeType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Attachment{}, errs.ErrPictureNotFound
		}
		return model.Attachment{}, err
	}
	return pic, nil
}

// DeletePicture removes the user's profile picture.
func (r *UserRepo) DeletePicture(ctx context.Context, user uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM profile_pictures WHERE user_id=$1`, user)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrPictureNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryRefs(ctx context.Context, db querier, q string, args ...any) ([]model.UserRef, error) {
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UserRef
	for rows.Next() {
		var ref model.UserRef
		if err := rows.Scan(&ref.ID, &ref.Username); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
