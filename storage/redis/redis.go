// Package redis implements storage.Repository on top of Redis.
//
// Records are JSON values. Read-modify-write operations use WATCH/MULTI
// optimistic transactions and retry a bounded number of times when a watched
// key changes underneath them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jmcleod/drivelocker/storage"
)

const (
	defaultPrefix = "drivelocker"
	maxTxRetries  = 8
)

// Store implements storage.Repository backed by Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every key under prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewRepository returns a Repository using the given client.
func NewRepository(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRepositoryFromAddr connects to the Redis server at addr and verifies
// the connection with PING.
func NewRepositoryFromAddr(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRepository(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) accountKey(email string) string { return s.prefix + ":acct:" + email }
func (s *Store) passkeyKey(email string) string { return s.prefix + ":passkey:" + email }
func (s *Store) filesKey(email string) string   { return s.prefix + ":files:" + email }
func (s *Store) fileIndexKey() string           { return s.prefix + ":fileidx" }
func (s *Store) notesKey(email string) string   { return s.prefix + ":notes:" + email }

// noteTitlesKey maps an owner's note titles to note IDs.
func (s *Store) noteTitlesKey(email string) string { return s.prefix + ":notetitles:" + email }

// watch runs fn as an optimistic transaction over keys, retrying when a
// watched key was modified before EXEC.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %v: %w", keys, redis.TxFailedErr)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HVals(ctx context.Context, key string) *redis.StringSliceCmd
}

func getJSON[T any](ctx context.Context, c getter, key string) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &v, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *storage.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.accountKey(account.Email), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %s: %w", account.Email, storage.ErrConflict)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, email string) (*storage.Account, error) {
	acct, err := getJSON[storage.Account](ctx, s.client, s.accountKey(email))
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("account %s: %w", email, storage.ErrNotFound)
	}
	return acct, err
}

func (s *Store) SaveAccount(ctx context.Context, account *storage.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.accountKey(account.Email), data, 0).Err()
}

func (s *Store) UpdateAccount(ctx context.Context, email string, fn func(*storage.Account) error) (*storage.Account, error) {
	key := s.accountKey(email)
	var updated *storage.Account
	err := s.watch(ctx, func(tx *redis.Tx) error {
		acct, err := getJSON[storage.Account](ctx, tx, key)
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("account %s: %w", email, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := fn(acct); err != nil {
			return err
		}
		acct.Email = email
		data, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = acct
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) CreatePasskey(ctx context.Context, passkey *storage.Passkey) error {
	acctKey := s.accountKey(passkey.AccountEmail)
	pkKey := s.passkeyKey(passkey.AccountEmail)
	return s.watch(ctx, func(tx *redis.Tx) error {
		acct, err := getJSON[storage.Account](ctx, tx, acctKey)
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("account %s: %w", passkey.AccountEmail, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}
		exists, err := tx.Exists(ctx, pkKey).Result()
		if err != nil {
			return err
		}
		if acct.HasPasskey || exists > 0 {
			return fmt.Errorf("passkey %s: %w", passkey.AccountEmail, storage.ErrConflict)
		}

		acct.HasPasskey = true
		acctData, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		pkData, err := json.Marshal(passkey)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pkKey, pkData, 0)
			pipe.Set(ctx, acctKey, acctData, 0)
			return nil
		})
		return err
	}, acctKey, pkKey)
}

func (s *Store) GetPasskey(ctx context.Context, email string) (*storage.Passkey, error) {
	pk, err := getJSON[storage.Passkey](ctx, s.client, s.passkeyKey(email))
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("passkey %s: %w", email, storage.ErrNotFound)
	}
	return pk, err
}

func (s *Store) PutFile(ctx context.Context, file *storage.File) error {
	indexKey := s.fileIndexKey()
	filesKey := s.filesKey(file.OwnerEmail)
	data, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, indexKey, file.PublicID).Result()
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("file %s: %w", file.PublicID, storage.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, filesKey, file.PublicID, data)
			pipe.HSet(ctx, indexKey, file.PublicID, file.OwnerEmail)
			return nil
		})
		return err
	}, indexKey)
}

func (s *Store) ListFiles(ctx context.Context, ownerEmail string, page storage.Page) ([]*storage.File, int, error) {
	files, err := hashValues[storage.File](ctx, s.client, s.filesKey(ownerEmail))
	if err != nil {
		return nil, 0, err
	}
	storage.SortFiles(files)
	window, total := storage.Paginate(files, page)
	return window, total, nil
}

// hashValues decodes every field value of the hash at key.
func hashValues[T any](ctx context.Context, c hashReader, key string) ([]*T, error) {
	vals, err := c.HVals(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(vals))
	for _, v := range vals {
		var item T
		if err := json.Unmarshal([]byte(v), &item); err != nil {
			return nil, fmt.Errorf("decoding %s entry: %w", key, err)
		}
		out = append(out, &item)
	}
	return out, nil
}

// DeleteFiles removes all of publicIDs or none of them.
func (s *Store) DeleteFiles(ctx context.Context, ownerEmail string, publicIDs []string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	filesKey := s.filesKey(ownerEmail)
	indexKey := s.fileIndexKey()
	return s.watch(ctx, func(tx *redis.Tx) error {
		present, err := tx.HMGet(ctx, filesKey, publicIDs...).Result()
		if err != nil {
			return err
		}
		for i, v := range present {
			if v == nil {
				return fmt.Errorf("file %s: %w", publicIDs[i], storage.ErrNotFound)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, filesKey, publicIDs...)
			pipe.HDel(ctx, indexKey, publicIDs...)
			return nil
		})
		return err
	}, filesKey, indexKey)
}

func (s *Store) CreateNote(ctx context.Context, note *storage.Note) error {
	acctKey := s.accountKey(note.OwnerEmail)
	notesKey := s.notesKey(note.OwnerEmail)
	titlesKey := s.noteTitlesKey(note.OwnerEmail)
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, acctKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("account %s: %w", note.OwnerEmail, storage.ErrNotFound)
		}
		exists, err := tx.HExists(ctx, notesKey, note.ID).Result()
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("note %s: %w", note.ID, storage.ErrConflict)
		}
		taken, err := tx.HExists(ctx, titlesKey, note.Title).Result()
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("note title %q: %w", note.Title, storage.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, notesKey, note.ID, data)
			pipe.HSet(ctx, titlesKey, note.Title, note.ID)
			return nil
		})
		return err
	}, acctKey, notesKey, titlesKey)
}

func (s *Store) getNote(ctx context.Context, c hashReader, ownerEmail, id string) (*storage.Note, error) {
	data, err := c.HGet(ctx, s.notesKey(ownerEmail), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var n storage.Note
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decoding note %s: %w", id, err)
	}
	return &n, nil
}

func (s *Store) GetNote(ctx context.Context, ownerEmail, id string) (*storage.Note, error) {
	return s.getNote(ctx, s.client, ownerEmail, id)
}

func (s *Store) ListNotes(ctx context.Context, ownerEmail string, page storage.Page) ([]*storage.Note, int, error) {
	notes, err := hashValues[storage.Note](ctx, s.client, s.notesKey(ownerEmail))
	if err != nil {
		return nil, 0, err
	}
	storage.SortNotes(notes)
	window, total := storage.Paginate(notes, page)
	return window, total, nil
}

func (s *Store) UpdateNote(ctx context.Context, ownerEmail, id string, fn func(*storage.Note) error) (*storage.Note, error) {
	notesKey := s.notesKey(ownerEmail)
	titlesKey := s.noteTitlesKey(ownerEmail)
	var updated *storage.Note
	err := s.watch(ctx, func(tx *redis.Tx) error {
		note, err := s.getNote(ctx, tx, ownerEmail, id)
		if err != nil {
			return err
		}
		oldTitle := note.Title
		if err := fn(note); err != nil {
			return err
		}
		note.ID, note.OwnerEmail = id, ownerEmail
		if note.Title != oldTitle {
			holder, err := tx.HGet(ctx, titlesKey, note.Title).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && holder != id {
				return fmt.Errorf("note title %q: %w", note.Title, storage.ErrConflict)
			}
		}
		data, err := json.Marshal(note)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, notesKey, id, data)
			if note.Title != oldTitle {
				pipe.HDel(ctx, titlesKey, oldTitle)
				pipe.HSet(ctx, titlesKey, note.Title, id)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = note
		return nil
	}, notesKey, titlesKey)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteNotes removes all of ids or none of them.
func (s *Store) DeleteNotes(ctx context.Context, ownerEmail string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	notesKey := s.notesKey(ownerEmail)
	titlesKey := s.noteTitlesKey(ownerEmail)
	return s.watch(ctx, func(tx *redis.Tx) error {
		present, err := tx.HMGet(ctx, notesKey, ids...).Result()
		if err != nil {
			return err
		}
		titles := make([]string, 0, len(ids))
		for i, v := range present {
			raw, ok := v.(string)
			if !ok {
				return fmt.Errorf("note %s: %w", ids[i], storage.ErrNotFound)
			}
			var n storage.Note
			if err := json.Unmarshal([]byte(raw), &n); err != nil {
				return fmt.Errorf("decoding note %s: %w", ids[i], err)
			}
			titles = append(titles, n.Title)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, notesKey, ids...)
			pipe.HDel(ctx, titlesKey, titles...)
			return nil
		})
		return err
	}, notesKey, titlesKey)
}
