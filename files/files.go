// Package files implements passkey-gated upload, listing and deletion of a
// user's stored files.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/blob"
	"github.com/jmcleod/drivelocker/internal/util"
	"github.com/jmcleod/drivelocker/internal/uuid"
	"github.com/jmcleod/drivelocker/passkey"
	"github.com/jmcleod/drivelocker/storage"
)

var (
	// ErrFileNotFound is returned when a file ID is unknown or owned by
	// another account.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileStorage is returned when the blob store fails.
	ErrFileStorage = errors.New("file storage failure")
)

// UploadInput describes one file to store.
type UploadInput struct {
	Passkey     string
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Info is a stored file with a download link.
type Info struct {
	PublicID    string
	Name        string
	ContentType string
	Format      string
	Size        int64
	URL         string
	CreatedAt   time.Time
}

// Service stores files for verified accounts.
type Service struct {
	repo     storage.Repository
	accounts *account.Service
	gate     *passkey.Gate
	blobs    blob.Store
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
func NewService(repo storage.Repository, accounts *account.Service, gate *passkey.Gate, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		accounts: accounts,
		gate:     gate,
		blobs:    blobs,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "files"))
	return s
}

// Upload checks the passkey, writes the content to the blob store and
// records its metadata. If the metadata cannot be recorded the blob is
// removed again.
func (s *Service) Upload(ctx context.Context, email string, in UploadInput) (*Info, error) {
	acct, err := s.accounts.RequireVerified(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, acct.Email, in.Passkey); err != nil {
		return nil, err
	}

	name := path.Base(strings.ReplaceAll(strings.TrimSpace(in.Name), `\`, "/"))
	if in.Body == nil || name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: file is required", account.ErrMissingDetails)
	}
	ext := strings.ToLower(path.Ext(name))
	key := "users/" + acct.ID + "/" + uuid.New() + ext

	if err := s.blobs.Upload(ctx, key, in.ContentType, in.Size, in.Body); err != nil {
		s.logger.ErrorContext(ctx, "blob upload failed", slog.String("account_id", acct.ID), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrFileStorage, err)
	}

	f := &storage.File{
		PublicID:    key,
		OwnerEmail:  acct.Email,
		Name:        name,
		ContentType: in.ContentType,
		Format:      strings.TrimPrefix(ext, "."),
		Size:        in.Size,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.PutFile(ctx, f); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), []string{key}); derr != nil {
			s.logger.WarnContext(ctx, "orphaned blob", slog.String("key", key), slog.Any("error", derr))
		}
		return nil, fmt.Errorf("recording file: %w", err)
	}
	s.logger.InfoContext(ctx, "file uploaded", slog.String("account_id", acct.ID), slog.Int64("size", f.Size))

	return s.info(ctx, f)
}

// List returns one page of the account's files, newest first, and the
// account's total file count. Download links are signed only for the
// returned page. An account with no files gets an empty slice.
func (s *Service) List(ctx context.Context, email string, page storage.Page) ([]*Info, int, error) {
	acct, err := s.accounts.RequireVerified(ctx, email)
	if err != nil {
		return nil, 0, err
	}
	stored, total, err := s.repo.ListFiles(ctx, acct.Email, page)
	if err != nil {
		return nil, 0, fmt.Errorf("listing files: %w", err)
	}
	out := make([]*Info, 0, len(stored))
	for _, f := range stored {
		info, err := s.info(ctx, f)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, info)
	}
	return out, total, nil
}

// Delete removes the given files. Either every ID belongs to the account
// and all are deleted, or nothing is.
func (s *Service) Delete(ctx context.Context, email string, publicIDs []string) (int, error) {
	acct, err := s.accounts.RequireVerified(ctx, email)
	if err != nil {
		return 0, err
	}
	ids := util.CompactIDs(publicIDs)
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no files selected", account.ErrMissingDetails)
	}

	stored, _, err := s.repo.ListFiles(ctx, acct.Email, storage.Page{})
	if err != nil {
		return 0, fmt.Errorf("listing files: %w", err)
	}
	owned := make(map[string]bool, len(stored))
	for _, f := range stored {
		owned[f.PublicID] = true
	}
	for _, id := range ids {
		if !owned[id] {
			return 0, fmt.Errorf("%s: %w", id, ErrFileNotFound)
		}
	}

	if err := s.blobs.Delete(ctx, ids); err != nil {
		s.logger.ErrorContext(ctx, "blob delete failed", slog.String("account_id", acct.ID), slog.Any("error", err))
		return 0, fmt.Errorf("%w: %v", ErrFileStorage, err)
	}
	if err := s.repo.DeleteFiles(ctx, acct.Email, ids); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%w: %v", ErrFileNotFound, err)
		}
		return 0, fmt.Errorf("deleting file records: %w", err)
	}
	s.logger.InfoContext(ctx, "files deleted", slog.String("account_id", acct.ID), slog.Int("count", len(ids)))
	return len(ids), nil
}

func (s *Service) info(ctx context.Context, f *storage.File) (*Info, error) {
	u, err := s.blobs.URL(ctx, f.PublicID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileStorage, err)
	}
	return &Info{
		PublicID:    f.PublicID,
		Name:        f.Name,
		ContentType: f.ContentType,
		Format:      f.Format,
		Size:        f.Size,
		URL:         u,
		CreatedAt:   f.CreatedAt,
	}, nil
}
