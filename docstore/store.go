package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

const (
	DefaultKey = "rag-documents"

	maxWriteAttempts = 5
)

// Store keeps the whole document collection under a single key. Mutations are
// read-modify-write cycles committed with a version check, so a concurrent
// writer forces a re-read instead of being overwritten.
type Store struct {
	log *slog.Logger
	kv  KVStore
	key string
}

func NewStore(kv KVStore, key string, log *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}

	return &Store{log: log, kv: kv, key: key}
}

// List returns documents in insertion order. On failure the slice is empty and
// the error wraps ErrStorageUnavailable.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	docs, _, err := s.load(ctx)
	if err != nil {
		return []Document{}, err
	}

	return docs, nil
}

func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return Document{}, err
	}

	i := slices.IndexFunc(docs, func(d Document) bool { return d.ID == id })
	if i < 0 {
		return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	return docs[i], nil
}

func (s *Store) Insert(ctx context.Context, doc Document) error {
	err := s.update(ctx, func(docs []Document) ([]Document, bool) {
		return append(docs, doc), true
	})
	if err != nil {
		return fmt.Errorf("failed to store document %s: %w", doc.Filename, err)
	}

	return nil
}

// Remove deletes the document with the given id. Unknown ids are not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	err := s.update(ctx, func(docs []Document) ([]Document, bool) {
		n := len(docs)
		docs = slices.DeleteFunc(docs, func(d Document) bool { return d.ID == id })
		return docs, len(docs) != n
	})
	if err != nil {
		return fmt.Errorf("failed to remove document %s: %w", id, err)
	}

	return nil
}

// Clear empties the collection. The key is overwritten rather than deleted so
// its version keeps increasing and stale writers still fail the version check.
func (s *Store) Clear(ctx context.Context) error {
	err := s.update(ctx, func(docs []Document) ([]Document, bool) {
		return docs[:0], true
	})
	if err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}

	return nil
}

func (s *Store) update(ctx context.Context, mutate func([]Document) ([]Document, bool)) error {
	for range maxWriteAttempts {
		docs, version, err := s.load(ctx)
		if err != nil && version < 0 {
			return err
		}

		docs, changed := mutate(docs)
		if !changed {
			return nil
		}

		raw, err := json.Marshal(docs)
		if err != nil {
			return fmt.Errorf("failed to encode documents: %w", err)
		}

		err = s.kv.CompareAndSwap(ctx, s.key, string(raw), version)
		if errors.Is(err, ErrVersionConflict) {
			s.log.Debug("document collection changed concurrently, retrying", "key", s.key)
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}

		return nil
	}

	return ErrConflict
}

// load reads and decodes the collection. Corrupt data decodes to an empty
// collection with a non-negative version so the next write replaces it; a
// negative version means the store itself could not be read.
func (s *Store) load(ctx context.Context) ([]Document, int64, error) {
	raw, version, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrKeyNotFound) {
		return []Document{}, 0, nil
	}
	if err != nil {
		return []Document{}, -1, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	var docs []Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		s.log.Warn("discarding corrupted document collection", "key", s.key, "error", err)
		return []Document{}, version, fmt.Errorf("%w: corrupted data: %w", ErrStorageUnavailable, err)
	}
	if docs == nil {
		docs = []Document{}
	}

	return docs, version, nil
}
