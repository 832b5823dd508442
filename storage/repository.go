// Package storage provides the persistence abstraction for accounts, passkeys,
// file metadata and notes.
package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write would violate a uniqueness
	// constraint (duplicate email, second passkey, duplicate file ID, note
	// title already used by the same owner).
	ErrConflict = errors.New("record already exists")
)

// Account is the credential record for one user. Email is the primary
// lookup key and never changes after creation.
type Account struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	PasswordHash       string    `json:"password_hash"`
	Verified           bool      `json:"verified"`
	VerifyOTP          string    `json:"verify_otp,omitempty"`
	VerifyOTPExpiresAt time.Time `json:"verify_otp_expires_at"`
	ResetOTP           string    `json:"reset_otp,omitempty"`
	ResetOTPExpiresAt  time.Time `json:"reset_otp_expires_at"`
	HasPasskey         bool      `json:"has_passkey"`
	PasswordChangedAt  time.Time `json:"password_changed_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Clone returns a copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// Passkey is the hashed secondary secret of an account. At most one exists
// per account and it is immutable once created.
type Passkey struct {
	AccountEmail string    `json:"account_email"`
	Hash         string    `json:"hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// File is the metadata of an uploaded blob. PublicID is the blob store key.
type File struct {
	PublicID    string    `json:"public_id"`
	OwnerEmail  string    `json:"owner_email"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Format      string    `json:"format"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Note is a titled text note. Titles are unique per owner.
type Note struct {
	ID         string    `json:"id"`
	OwnerEmail string    `json:"owner_email"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Favourite  bool      `json:"favourite"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Page selects a window of an ordered listing. A Limit of zero or less
// means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Bounds returns the [start, end) indices of the page within a listing of
// total items. An offset past the end yields an empty window.
func (p Page) Bounds(total int) (start, end int) {
	start = min(max(p.Offset, 0), total)
	end = total
	if p.Limit > 0 {
		end = min(start+p.Limit, total)
	}
	return start, end
}

// Paginate returns the page of items, which must already be in listing
// order, together with the total count.
func Paginate[T any](items []T, p Page) ([]T, int) {
	start, end := p.Bounds(len(items))
	return items[start:end], len(items)
}

// Repository defines the persistence operations used by the account, OTP,
// passkey, file and note services.
//
// UpdateAccount is an atomic read-modify-write scoped to one account: fn
// receives a copy of the current record, and if fn returns an error nothing
// is written and that error is returned unchanged. CreatePasskey stores the
// passkey and sets Account.HasPasskey in one atomic step. UpdateNote follows
// the same contract for one note and fails with ErrConflict if fn renames it
// to a title the owner already uses.
//
// Listings return the requested page plus the owner's total count. Note
// lookups are scoped to the owner: another owner's note is ErrNotFound.
type Repository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, email string) (*Account, error)
	SaveAccount(ctx context.Context, account *Account) error
	UpdateAccount(ctx context.Context, email string, fn func(*Account) error) (*Account, error)

	CreatePasskey(ctx context.Context, passkey *Passkey) error
	GetPasskey(ctx context.Context, email string) (*Passkey, error)

	PutFile(ctx context.Context, file *File) error
	ListFiles(ctx context.Context, ownerEmail string, page Page) ([]*File, int, error)
	DeleteFiles(ctx context.Context, ownerEmail string, publicIDs []string) error

	CreateNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, ownerEmail, id string) (*Note, error)
	ListNotes(ctx context.Context, ownerEmail string, page Page) ([]*Note, int, error)
	UpdateNote(ctx context.Context, ownerEmail, id string, fn func(*Note) error) (*Note, error)
	DeleteNotes(ctx context.Context, ownerEmail string, ids []string) error
}

// SortFiles orders files newest first, breaking ties by PublicID so listings
// are stable across backends.
func SortFiles(files []*File) {
	slices.SortFunc(files, func(a, b *File) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.PublicID, b.PublicID)
	})
}

// SortNotes orders notes most recently updated first, breaking ties by ID.
func SortNotes(notes []*Note) {
	slices.SortFunc(notes, func(a, b *Note) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
