// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmcleod/drivelocker/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu       sync.RWMutex
	accounts map[string]*storage.Account
	passkeys map[string]*storage.Passkey
	files    map[string]map[string]*storage.File
	notes    map[string]map[string]*storage.Note
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		accounts: make(map[string]*storage.Account),
		passkeys: make(map[string]*storage.Passkey),
		files:    make(map[string]map[string]*storage.File),
		notes:    make(map[string]map[string]*storage.Note),
	}
}

func clonePasskey(p *storage.Passkey) *storage.Passkey {
	cp := *p
	return &cp
}

func cloneFile(f *storage.File) *storage.File {
	cp := *f
	return &cp
}

func cloneNote(n *storage.Note) *storage.Note {
	cp := *n
	return &cp
}

func (r *Repository) CreateAccount(_ context.Context, account *storage.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.Email]; ok {
		return fmt.Errorf("account %s: %w", account.Email, storage.ErrConflict)
	}
	r.accounts[account.Email] = account.Clone()
	return nil
}

func (r *Repository) GetAccount(_ context.Context, email string) (*storage.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[email]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", email, storage.ErrNotFound)
	}
	return acct.Clone(), nil
}

func (r *Repository) SaveAccount(_ context.Context, account *storage.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.Email] = account.Clone()
	return nil
}

func (r *Repository) UpdateAccount(_ context.Context, email string, fn func(*storage.Account) error) (*storage.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[email]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", email, storage.ErrNotFound)
	}
	working := acct.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Email = email
	r.accounts[email] = working
	return working.Clone(), nil
}

func (r *Repository) CreatePasskey(_ context.Context, passkey *storage.Passkey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[passkey.AccountEmail]
	if !ok {
		return fmt.Errorf("account %s: %w", passkey.AccountEmail, storage.ErrNotFound)
	}
	if _, exists := r.passkeys[passkey.AccountEmail]; exists || acct.HasPasskey {
		return fmt.Errorf("passkey %s: %w", passkey.AccountEmail, storage.ErrConflict)
	}
	r.passkeys[passkey.AccountEmail] = clonePasskey(passkey)
	acct.HasPasskey = true
	return nil
}

func (r *Repository) GetPasskey(_ context.Context, email string) (*storage.Passkey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.passkeys[email]
	if !ok {
		return nil, fmt.Errorf("passkey %s: %w", email, storage.ErrNotFound)
	}
	return clonePasskey(p), nil
}

func (r *Repository) PutFile(_ context.Context, file *storage.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, owned := range r.files {
		if _, ok := owned[file.PublicID]; ok {
			return fmt.Errorf("file %s: %w", file.PublicID, storage.ErrConflict)
		}
	}
	owned, ok := r.files[file.OwnerEmail]
	if !ok {
		owned = make(map[string]*storage.File)
		r.files[file.OwnerEmail] = owned
	}
	owned[file.PublicID] = cloneFile(file)
	return nil
}

func (r *Repository) ListFiles(_ context.Context, ownerEmail string, page storage.Page) ([]*storage.File, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	files := make([]*storage.File, 0, len(r.files[ownerEmail]))
	for _, f := range r.files[ownerEmail] {
		files = append(files, f)
	}
	storage.SortFiles(files)
	window, total := storage.Paginate(files, page)
	out := make([]*storage.File, len(window))
	for i, f := range window {
		out[i] = cloneFile(f)
	}
	return out, total, nil
}

// DeleteFiles removes all of publicIDs or none of them.
func (r *Repository) DeleteFiles(_ context.Context, ownerEmail string, publicIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := r.files[ownerEmail]
	for _, id := range publicIDs {
		if _, ok := owned[id]; !ok {
			return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
		}
	}
	for _, id := range publicIDs {
		delete(owned, id)
	}
	return nil
}

// titleTaken reports whether owner has a note other than id titled title.
// Callers hold r.mu.
func (r *Repository) titleTaken(owner, title, id string) bool {
	for _, n := range r.notes[owner] {
		if n.Title == title && n.ID != id {
			return true
		}
	}
	return false
}

func (r *Repository) CreateNote(_ context.Context, note *storage.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[note.OwnerEmail]; !ok {
		return fmt.Errorf("account %s: %w", note.OwnerEmail, storage.ErrNotFound)
	}
	owned, ok := r.notes[note.OwnerEmail]
	if !ok {
		owned = make(map[string]*storage.Note)
		r.notes[note.OwnerEmail] = owned
	}
	if _, exists := owned[note.ID]; exists {
		return fmt.Errorf("note %s: %w", note.ID, storage.ErrConflict)
	}
	if r.titleTaken(note.OwnerEmail, note.Title, note.ID) {
		return fmt.Errorf("note title %q: %w", note.Title, storage.ErrConflict)
	}
	owned[note.ID] = cloneNote(note)
	return nil
}

func (r *Repository) GetNote(_ context.Context, ownerEmail, id string) (*storage.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notes[ownerEmail][id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
	}
	return cloneNote(n), nil
}

func (r *Repository) ListNotes(_ context.Context, ownerEmail string, page storage.Page) ([]*storage.Note, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	notes := make([]*storage.Note, 0, len(r.notes[ownerEmail]))
	for _, n := range r.notes[ownerEmail] {
		notes = append(notes, n)
	}
	storage.SortNotes(notes)
	window, total := storage.Paginate(notes, page)
	out := make([]*storage.Note, len(window))
	for i, n := range window {
		out[i] = cloneNote(n)
	}
	return out, total, nil
}

func (r *Repository) UpdateNote(_ context.Context, ownerEmail, id string, fn func(*storage.Note) error) (*storage.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[ownerEmail][id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
	}
	working := cloneNote(n)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID, working.OwnerEmail = id, ownerEmail
	if r.titleTaken(ownerEmail, working.Title, id) {
		return nil, fmt.Errorf("note title %q: %w", working.Title, storage.ErrConflict)
	}
	r.notes[ownerEmail][id] = working
	return cloneNote(working), nil
}

// DeleteNotes removes all of ids or none of them.
func (r *Repository) DeleteNotes(_ context.Context, ownerEmail string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := r.notes[ownerEmail]
	for _, id := range ids {
		if _, ok := owned[id]; !ok {
			return fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
		}
	}
	for _, id := range ids {
		delete(owned, id)
	}
	return nil
}
