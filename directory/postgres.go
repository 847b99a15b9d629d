package directory

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNilPool is returned when a Postgres directory is built without a pool.
var ErrNilPool = errors.New("directory: nil pgx pool")

const uniqueViolation = "23505"

const (
	selectByEmail = `
		SELECT id::text, name, email, password_hash, role::text
		FROM users
		WHERE lower(email) = lower($1)`

	selectByID = `
		SELECT id::text, name, email, password_hash, role::text
		FROM users
		WHERE id = $1`

	existsByEmail = `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`

	insertUser = `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5::user_role)`
)

// Postgres is a [goSession.UserDirectory] backed by the users table created by [Migrate].
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps pool.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (goSession.User, bool, error) {
	return p.findOne(ctx, "find by email", selectByEmail, email)
}

// FindByID returns found=false for ids that are not UUIDs, since no row can match them.
func (p *Postgres) FindByID(ctx context.Context, id string) (goSession.User, bool, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return goSession.User{}, false, nil
	}
	return p.findOne(ctx, "find by id", selectByID, parsed)
}

func (p *Postgres) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, existsByEmail, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("directory: exists: %w", err)
	}
	return exists, nil
}

// Create inserts a user inside one transaction. A unique violation on email
// is reported as [goSession.ErrDuplicateSubject].
func (p *Postgres) Create(ctx context.Context, in goSession.CreateUserInput) (u goSession.User, err error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return goSession.User{}, fmt.Errorf("directory: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	u = goSession.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
	}
	if u.Role == "" {
		u.Role = goSession.RoleUser
	}

	if _, err = tx.Exec(ctx, insertUser, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return goSession.User{}, fmt.Errorf("directory: %s: %w", pgErr.ConstraintName, goSession.ErrDuplicateSubject)
		}
		return goSession.User{}, fmt.Errorf("directory: insert user: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return goSession.User{}, fmt.Errorf("directory: commit: %w", err)
	}
	return u, nil
}

func (p *Postgres) findOne(ctx context.Context, op, query string, arg any) (goSession.User, bool, error) {
	var (
		u    goSession.User
		role string
	)
	err := p.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return goSession.User{}, false, nil
	}
	if err != nil {
		return goSession.User{}, false, fmt.Errorf("directory: %s: %w", op, err)
	}
	u.Role = goSession.Role(role)
	return u, true, nil
}

var _ goSession.UserDirectory = (*Postgres)(nil)
