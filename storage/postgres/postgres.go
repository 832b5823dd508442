// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Accounts are keyed by email. Every read-modify-write on an account locks
// its row with SELECT ... FOR UPDATE inside a pgx transaction, and the
// uniqueness rules (one account per email, one passkey per account, one file
// per public ID) are primary keys, so violations surface as
// storage.ErrConflict.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/drivelocker/storage"
)

const uniqueViolation = "23505"

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, applies
// pending migrations, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := Migrate(ctx, pool, "up"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return NewRepository(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

const accountColumns = `email, id, name, password_hash, verified,
	verify_otp, verify_otp_expires_at, reset_otp, reset_otp_expires_at,
	has_passkey, password_changed_at, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, a *storage.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		accountArgs(a)...)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", a.Email, storage.ErrConflict)
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, email string) (*storage.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", email, storage.ErrNotFound)
	}
	return a, err
}

func (s *Store) SaveAccount(ctx context.Context, a *storage.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (email) DO UPDATE SET
		   name = $3, password_hash = $4, verified = $5,
		   verify_otp = $6, verify_otp_expires_at = $7,
		   reset_otp = $8, reset_otp_expires_at = $9,
		   has_passkey = $10, password_changed_at = $11, updated_at = $13`,
		accountArgs(a)...)
	return err
}

func (s *Store) UpdateAccount(ctx context.Context, email string, fn func(*storage.Account) error) (*storage.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	a, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1 FOR UPDATE`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", email, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	a.Email = email

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET
		   id = $2, name = $3, password_hash = $4, verified = $5,
		   verify_otp = $6, verify_otp_expires_at = $7,
		   reset_otp = $8, reset_otp_expires_at = $9,
		   has_passkey = $10, password_changed_at = $11,
		   created_at = $12, updated_at = $13
		 WHERE email = $1`,
		accountArgs(a)...)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// Passkeys
// ---------------------------------------------------------------------------

func (s *Store) CreatePasskey(ctx context.Context, p *storage.Passkey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var hasPasskey bool
	err = tx.QueryRow(ctx,
		`SELECT has_passkey FROM accounts WHERE email = $1 FOR UPDATE`,
		p.AccountEmail).Scan(&hasPasskey)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("account %s: %w", p.AccountEmail, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if hasPasskey {
		return fmt.Errorf("passkey %s: %w", p.AccountEmail, storage.ErrConflict)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO passkeys (account_email, hash, created_at) VALUES ($1, $2, $3)`,
		p.AccountEmail, p.Hash, p.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("passkey %s: %w", p.AccountEmail, storage.ErrConflict)
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET has_passkey = TRUE WHERE email = $1`, p.AccountEmail); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetPasskey(ctx context.Context, email string) (*storage.Passkey, error) {
	var p storage.Passkey
	err := s.pool.QueryRow(ctx,
		`SELECT account_email, hash, created_at FROM passkeys WHERE account_email = $1`,
		email).Scan(&p.AccountEmail, &p.Hash, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("passkey %s: %w", email, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

func (s *Store) PutFile(ctx context.Context, f *storage.File) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO files (public_id, owner_email, name, content_type, format, size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.PublicID, f.OwnerEmail, f.Name, f.ContentType, f.Format, f.Size, f.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("file %s: %w", f.PublicID, storage.ErrConflict)
	}
	return err
}

func (s *Store) ListFiles(ctx context.Context, ownerEmail string, page storage.Page) ([]*storage.File, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM files WHERE owner_email = $1`, ownerEmail).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT public_id, owner_email, name, content_type, format, size, created_at
		 FROM files WHERE owner_email = $1
		 ORDER BY created_at DESC, public_id
		 LIMIT $2 OFFSET $3`,
		ownerEmail, limitArg(page), max(page.Offset, 0))
	if err != nil {
		return nil, 0, err
	}
	files, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.File, error) {
		var f storage.File
		err := row.Scan(&f.PublicID, &f.OwnerEmail, &f.Name, &f.ContentType, &f.Format, &f.Size, &f.CreatedAt)
		return &f, err
	})
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// DeleteFiles removes all of publicIDs or none of them.
func (s *Store) DeleteFiles(ctx context.Context, ownerEmail string, publicIDs []string) error {
	ids := dedupe(publicIDs)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`DELETE FROM files WHERE owner_email = $1 AND public_id = ANY($2)`,
		ownerEmail, ids)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("files of %s: %w", ownerEmail, storage.ErrNotFound)
	}
	return tx.Commit(ctx)
}

// ---------------------------------------------------------------------------
// Notes
// ---------------------------------------------------------------------------

const noteColumns = `id, owner_email, title, content, favourite, created_at, updated_at`

func scanNote(row pgx.Row) (*storage.Note, error) {
	var n storage.Note
	err := row.Scan(&n.ID, &n.OwnerEmail, &n.Title, &n.Content, &n.Favourite, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) CreateNote(ctx context.Context, n *storage.Note) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, n.OwnerEmail).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("account %s: %w", n.OwnerEmail, storage.ErrNotFound)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.OwnerEmail, n.Title, n.Content, n.Favourite, n.CreatedAt, n.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("note %s: %w", n.Title, storage.ErrConflict)
	}
	return err
}

func (s *Store) GetNote(ctx context.Context, ownerEmail, id string) (*storage.Note, error) {
	n, err := scanNote(s.pool.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1 AND owner_email = $2`, id, ownerEmail))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
	}
	return n, err
}

func (s *Store) ListNotes(ctx context.Context, ownerEmail string, page storage.Page) ([]*storage.Note, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notes WHERE owner_email = $1`, ownerEmail).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE owner_email = $1
		 ORDER BY updated_at DESC, id
		 LIMIT $2 OFFSET $3`,
		ownerEmail, limitArg(page), max(page.Offset, 0))
	if err != nil {
		return nil, 0, err
	}
	notes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.Note, error) {
		return scanNote(row)
	})
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

func (s *Store) UpdateNote(ctx context.Context, ownerEmail, id string, fn func(*storage.Note) error) (*storage.Note, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := scanNote(tx.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1 AND owner_email = $2 FOR UPDATE`, id, ownerEmail))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := fn(n); err != nil {
		return nil, err
	}
	n.ID, n.OwnerEmail = id, ownerEmail

	_, err = tx.Exec(ctx,
		`UPDATE notes SET title = $3, content = $4, favourite = $5, updated_at = $6
		 WHERE id = $1 AND owner_email = $2`,
		n.ID, n.OwnerEmail, n.Title, n.Content, n.Favourite, n.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("note title %q: %w", n.Title, storage.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

// DeleteNotes removes all of ids or none of them.
func (s *Store) DeleteNotes(ctx context.Context, ownerEmail string, ids []string) error {
	ids = dedupe(ids)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`DELETE FROM notes WHERE owner_email = $1 AND id = ANY($2)`,
		ownerEmail, ids)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("notes of %s: %w", ownerEmail, storage.ErrNotFound)
	}
	return tx.Commit(ctx)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// limitArg maps an unlimited page to NULL, which LIMIT treats as no limit.
func limitArg(page storage.Page) *int {
	if page.Limit <= 0 {
		return nil
	}
	return &page.Limit
}

func accountArgs(a *storage.Account) []any {
	return []any{
		a.Email, a.ID, a.Name, a.PasswordHash, a.Verified,
		a.VerifyOTP, nullTime(a.VerifyOTPExpiresAt), a.ResetOTP, nullTime(a.ResetOTPExpiresAt),
		a.HasPasskey, nullTime(a.PasswordChangedAt), a.CreatedAt, a.UpdatedAt,
	}
}

func scanAccount(row pgx.Row) (*storage.Account, error) {
	var (
		a                            storage.Account
		verifyExp, resetExp, changed *time.Time
	)
	err := row.Scan(&a.Email, &a.ID, &a.Name, &a.PasswordHash, &a.Verified,
		&a.VerifyOTP, &verifyExp, &a.ResetOTP, &resetExp,
		&a.HasPasskey, &changed, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.VerifyOTPExpiresAt = derefTime(verifyExp)
	a.ResetOTPExpiresAt = derefTime(resetExp)
	a.PasswordChangedAt = derefTime(changed)
	return &a, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
