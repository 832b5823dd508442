// Package notes implements titled text notes kept alongside a user's files.
//
// Every operation requires a verified account. Titles are unique per
// account; deletes remove every requested note or none of them.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/internal/util"
	"github.com/jmcleod/drivelocker/internal/uuid"
	"github.com/jmcleod/drivelocker/storage"
)

var (
	// ErrNoteNotFound is returned when a note ID is unknown or owned by
	// another account.
	ErrNoteNotFound = errors.New("note not found")
	// ErrDuplicateTitle is returned when the account already has a note
	// with the requested title.
	ErrDuplicateTitle = errors.New("note title already exists")
)

// UpdateInput replaces the editable fields of a note.
type UpdateInput struct {
	ID        string
	Title     string
	Content   string
	Favourite bool
}

// Service manages notes for verified accounts.
type Service struct {
	repo     storage.Repository
	accounts *account.Service
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService returns a Service.
func NewService(repo storage.Repository, accounts *account.Service, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		accounts: accounts,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "notes"))
	return s
}

// Create stores a new note. New notes are not favourites.
func (s *Service) Create(ctx context.Context, email, title, content string) (*storage.Note, error) {
	acct, err := s.accounts.RequireVerified(ctx, email)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" || content == "" {
		return nil, fmt.Errorf("%w: title and notes content are required", account.ErrMissingDetails)
	}

	now := s.now().UTC()
	note := &storage.Note{
		ID:         uuid.New(),
		OwnerEmail: acct.Email,
		Title:      title,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateNote(ctx, note); err != nil {
		return nil, s.mapErr(err, "creating note")
	}
	s.logger.InfoContext(ctx, "note created", slog.String("account_id", acct.ID), slog.String("note_id", note.ID))
	return note, nil
}

// List returns one page of the account's notes, most recently updated
// first, and the account's total note count.
func (s *Service) List(ctx context.Context, email string, page storage.Page) ([]*storage.Note, int, error) {
	acct, err := s.accounts.RequireVerified(ctx, email)
	if err != nil {
		return nil, 0, err
	}
	notes, total, err := s.repo.ListNotes(ctx, acct.Email, page)
	if err != nil {
		return nil, 0, fmt.Errorf("listing notes: %w", err)
	}
	return notes, total, nil
}

// Update replaces the title, content and favourite flag of a note the
// account owns.
func (s *Service) Update(ctx context.Context, email string, in UpdateInput) (*storage.Note, error) {
	acct, err := s.accounts.RequireVerified(ctx, email)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: note id is required", account.ErrMissingDetails)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || in.Content == "" {
		return nil, fmt.Errorf("%w: title and notes content are required", account.ErrMissingDetails)
	}

	note, err := s.repo.UpdateNote(ctx, acct.Email, id, func(n *storage.Note) error {
		n.Title = title
		n.Content = in.Content
		n.Favourite = in.Favourite
		n.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err, "updating note")
	}
	s.logger.InfoContext(ctx, "note updated", slog.String("account_id", acct.ID), slog.String("note_id", id))
	return note, nil
}

// Delete removes the given notes and returns how many were removed.
func (s *Service) Delete(ctx context.Context, email string, ids []string) (int, error) {
	acct, err := s.accounts.RequireVerified(ctx, email)
	if err != nil {
		return 0, err
	}
	ids = util.CompactIDs(ids)
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no notes selected", account.ErrMissingDetails)
	}
	if err := s.repo.DeleteNotes(ctx, acct.Email, ids); err != nil {
		return 0, s.mapErr(err, "deleting notes")
	}
	s.logger.InfoContext(ctx, "notes deleted", slog.String("account_id", acct.ID), slog.Int("count", len(ids)))
	return len(ids), nil
}

func (s *Service) mapErr(err error, op string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNoteNotFound, err)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %v", ErrDuplicateTitle, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
