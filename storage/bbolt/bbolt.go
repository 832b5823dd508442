// Package bbolt provides a BBolt-backed storage repository.
//
// Accounts and passkeys live in flat buckets keyed by email. File metadata
// lives in one nested bucket per owner, with a top-level index from public ID
// to owner so IDs stay globally unique. Notes also nest per owner, keyed by
// ID.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/drivelocker/storage"
)

var (
	accountsBucket  = []byte("accounts")
	passkeysBucket  = []byte("passkeys")
	filesBucket     = []byte("files")
	fileIndexBucket = []byte("file_index")
	notesBucket     = []byte("notes")
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database,
// creating the top-level buckets if needed.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{accountsBucket, passkeysBucket, filesBucket, fileIndexBucket, notesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func getJSON[T any](b *bbolt.Bucket, key string) (*T, bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, false, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, err
	}
	return &v, true, nil
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func (s *Store) CreateAccount(_ context.Context, account *storage.Account) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		if b.Get([]byte(account.Email)) != nil {
			return fmt.Errorf("account %s: %w", account.Email, storage.ErrConflict)
		}
		return putJSON(b, account.Email, account)
	})
}

func (s *Store) GetAccount(_ context.Context, email string) (*storage.Account, error) {
	var acct *storage.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		a, ok, err := getJSON[storage.Account](tx.Bucket(accountsBucket), email)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("account %s: %w", email, storage.ErrNotFound)
		}
		acct = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Store) SaveAccount(_ context.Context, account *storage.Account) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(accountsBucket), account.Email, account)
	})
}

func (s *Store) UpdateAccount(_ context.Context, email string, fn func(*storage.Account) error) (*storage.Account, error) {
	var updated *storage.Account
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		acct, ok, err := getJSON[storage.Account](b, email)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("account %s: %w", email, storage.ErrNotFound)
		}
		if err := fn(acct); err != nil {
			return err
		}
		acct.Email = email
		updated = acct
		return putJSON(b, email, acct)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) CreatePasskey(_ context.Context, passkey *storage.Passkey) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		accounts := tx.Bucket(accountsBucket)
		acct, ok, err := getJSON[storage.Account](accounts, passkey.AccountEmail)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("account %s: %w", passkey.AccountEmail, storage.ErrNotFound)
		}
		passkeys := tx.Bucket(passkeysBucket)
		if acct.HasPasskey || passkeys.Get([]byte(passkey.AccountEmail)) != nil {
			return fmt.Errorf("passkey %s: %w", passkey.AccountEmail, storage.ErrConflict)
		}
		if err := putJSON(passkeys, passkey.AccountEmail, passkey); err != nil {
			return err
		}
		acct.HasPasskey = true
		return putJSON(accounts, acct.Email, acct)
	})
}

func (s *Store) GetPasskey(_ context.Context, email string) (*storage.Passkey, error) {
	var pk *storage.Passkey
	err := s.db.View(func(tx *bbolt.Tx) error {
		p, ok, err := getJSON[storage.Passkey](tx.Bucket(passkeysBucket), email)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("passkey %s: %w", email, storage.ErrNotFound)
		}
		pk = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pk, nil
}

func (s *Store) PutFile(_ context.Context, file *storage.File) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket(fileIndexBucket)
		if index.Get([]byte(file.PublicID)) != nil {
			return fmt.Errorf("file %s: %w", file.PublicID, storage.ErrConflict)
		}
		owned, err := tx.Bucket(filesBucket).CreateBucketIfNotExists([]byte(file.OwnerEmail))
		if err != nil {
			return err
		}
		if err := putJSON(owned, file.PublicID, file); err != nil {
			return err
		}
		return index.Put([]byte(file.PublicID), []byte(file.OwnerEmail))
	})
}

func (s *Store) ListFiles(_ context.Context, ownerEmail string, page storage.Page) ([]*storage.File, int, error) {
	files := []*storage.File{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		owned := tx.Bucket(filesBucket).Bucket([]byte(ownerEmail))
		if owned == nil {
			return nil
		}
		return owned.ForEach(func(_, v []byte) error {
			var f storage.File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			files = append(files, &f)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	storage.SortFiles(files)
	window, total := storage.Paginate(files, page)
	return window, total, nil
}

// DeleteFiles removes all of publicIDs or none of them.
func (s *Store) DeleteFiles(_ context.Context, ownerEmail string, publicIDs []string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		owned := tx.Bucket(filesBucket).Bucket([]byte(ownerEmail))
		index := tx.Bucket(fileIndexBucket)
		for _, id := range publicIDs {
			if owned == nil || owned.Get([]byte(id)) == nil {
				return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
			}
			if err := owned.Delete([]byte(id)); err != nil {
				return err
			}
			if err := index.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ownerNotes decodes every note in an owner's bucket. b may be nil.
func ownerNotes(b *bbolt.Bucket) ([]*storage.Note, error) {
	notes := []*storage.Note{}
	if b == nil {
		return notes, nil
	}
	err := b.ForEach(func(_, v []byte) error {
		var n storage.Note
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		notes = append(notes, &n)
		return nil
	})
	return notes, err
}

func titleTaken(b *bbolt.Bucket, title, id string) (bool, error) {
	notes, err := ownerNotes(b)
	if err != nil {
		return false, err
	}
	for _, n := range notes {
		if n.Title == title && n.ID != id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateNote(_ context.Context, note *storage.Note) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(accountsBucket).Get([]byte(note.OwnerEmail)) == nil {
			return fmt.Errorf("account %s: %w", note.OwnerEmail, storage.ErrNotFound)
		}
		owned, err := tx.Bucket(notesBucket).CreateBucketIfNotExists([]byte(note.OwnerEmail))
		if err != nil {
			return err
		}
		if owned.Get([]byte(note.ID)) != nil {
			return fmt.Errorf("note %s: %w", note.ID, storage.ErrConflict)
		}
		taken, err := titleTaken(owned, note.Title, note.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("note title %q: %w", note.Title, storage.ErrConflict)
		}
		return putJSON(owned, note.ID, note)
	})
}

func (s *Store) GetNote(_ context.Context, ownerEmail, id string) (*storage.Note, error) {
	var note *storage.Note
	err := s.db.View(func(tx *bbolt.Tx) error {
		owned := tx.Bucket(notesBucket).Bucket([]byte(ownerEmail))
		if owned == nil {
			return fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
		}
		n, ok, err := getJSON[storage.Note](owned, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
		}
		note = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Store) ListNotes(_ context.Context, ownerEmail string, page storage.Page) ([]*storage.Note, int, error) {
	var notes []*storage.Note
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		notes, err = ownerNotes(tx.Bucket(notesBucket).Bucket([]byte(ownerEmail)))
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	storage.SortNotes(notes)
	window, total := storage.Paginate(notes, page)
	return window, total, nil
}

func (s *Store) UpdateNote(_ context.Context, ownerEmail, id string, fn func(*storage.Note) error) (*storage.Note, error) {
	var updated *storage.Note
	err := s.db.Update(func(tx *bbolt.Tx) error {
		owned := tx.Bucket(notesBucket).Bucket([]byte(ownerEmail))
		if owned == nil {
			return fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
		}
		note, ok, err := getJSON[storage.Note](owned, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
		}
		if err := fn(note); err != nil {
			return err
		}
		note.ID, note.OwnerEmail = id, ownerEmail
		taken, err := titleTaken(owned, note.Title, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("note title %q: %w", note.Title, storage.ErrConflict)
		}
		updated = note
		return putJSON(owned, id, note)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteNotes removes all of ids or none of them.
func (s *Store) DeleteNotes(_ context.Context, ownerEmail string, ids []string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		owned := tx.Bucket(notesBucket).Bucket([]byte(ownerEmail))
		for _, id := range ids {
			if owned == nil || owned.Get([]byte(id)) == nil {
				return fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
			}
			if err := owned.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}
