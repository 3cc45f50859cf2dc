package core

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdentityStore is the lookup/persist boundary for identities.
// Lookups return (nil, nil) when nothing matches; errors are reserved for
// storage failures.
type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	Save(ctx context.Context, id *Identity) (*Identity, error)
}

// IdentityListItem is a projection for admin listing (no password hash).
type IdentityListItem struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"created_at"`
}

// IdentityDirectory exposes the administrative queries on the store.
type IdentityDirectory interface {
	HasAdmin(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, page, perPage int) ([]IdentityListItem, int, error)
}

// ResolveIdentity looks identifier up as a username first and then as an email.
func ResolveIdentity(ctx context.Context, store IdentityStore, identifier string) (*Identity, error) {
	id, err := store.FindByUsername(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if id != nil {
		return id, nil
	}
	return store.FindByEmail(ctx, identifier)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS identities (
	id            TEXT PRIMARY KEY,
	username      VARCHAR(20) NOT NULL,
	email         VARCHAR(50) NOT NULL,
	password_hash TEXT NOT NULL,
	role          VARCHAR(16) NOT NULL DEFAULT 'USER',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT identities_username_key UNIQUE (username),
	CONSTRAINT identities_email_key UNIQUE (email)
)`

// EnsureSchema creates the identities table when missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}

// PgIdentityRepository implements IdentityStore and IdentityDirectory using pgxpool.
type PgIdentityRepository struct {
	db *pgxpool.Pool
}

func NewPgIdentityRepository(db *pgxpool.Pool) *PgIdentityRepository {
	return &PgIdentityRepository{db: db}
}

const identityColumns = `id, username, email, password_hash, role, created_at`

func (r *PgIdentityRepository) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	return r.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE username=$1`, username)
}

func (r *PgIdentityRepository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email=$1`, email)
}

func (r *PgIdentityRepository) findOne(ctx context.Context, q string, arg string) (*Identity, error) {
	var id Identity
	var role string
	err := r.db.QueryRow(ctx, q, arg).Scan(&id.ID, &id.Username, &id.Email, &id.PasswordHash, &role, &id.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	id.Role = Role(role)
	return &id, nil
}

// Save inserts a new identity. A unique-constraint violation is reported as
// *DuplicateCredentialsError, which closes the window between the service's
// duplicate checks and this insert. The insert is also skipped when the
// username is another identity's email or the email another's username.
func (r *PgIdentityRepository) Save(ctx context.Context, id *Identity) (*Identity, error) {
	const q = `INSERT INTO identities (id, username, email, password_hash, role)
SELECT $1,$2,$3,$4,$5
WHERE NOT EXISTS (SELECT 1 FROM identities WHERE email=$2 OR username=$3)
RETURNING created_at`
	saved := *id
	if err := r.db.QueryRow(ctx, q, id.ID, id.Username, id.Email, id.PasswordHash, string(id.Role)).Scan(&saved.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.crossDuplicate(ctx, id)
		}
		if dup := duplicateFromPgError(err); dup != nil {
			return nil, dup
		}
		return nil, err
	}
	return &saved, nil
}

// crossDuplicate names the field whose value collides with the other column.
func (r *PgIdentityRepository) crossDuplicate(ctx context.Context, id *Identity) error {
	var usernameIsEmail bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE email=$1)`, id.Username).Scan(&usernameIsEmail); err != nil {
		return err
	}
	if usernameIsEmail {
		return &DuplicateCredentialsError{Field: "username"}
	}
	return &DuplicateCredentialsError{Field: "email"}
}

// duplicateFromPgError maps a unique_violation (SQLSTATE 23505) to the field it hit.
func duplicateFromPgError(err error) *DuplicateCredentialsError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	if strings.Contains(pgErr.ConstraintName, "email") {
		return &DuplicateCredentialsError{Field: "email"}
	}
	return &DuplicateCredentialsError{Field: "username"}
}

func (r *PgIdentityRepository) HasAdmin(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM identities WHERE role='ADMIN' LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PgIdentityRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// List returns paginated identities without password hash.
func (r *PgIdentityRepository) List(ctx context.Context, page, perPage int) ([]IdentityListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, username, email, role, to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"') FROM identities ORDER BY created_at, id LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]IdentityListItem, 0, perPage)
	for rows.Next() {
		var it IdentityListItem
		var role string
		if err := rows.Scan(&it.ID, &it.Username, &it.Email, &role, &it.CreatedAt); err != nil {
			return nil, 0, err
		}
		it.Role = Role(role)
		items = append(items, it)
	}
	return items, total, rows.Err()
}
