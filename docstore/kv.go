package docstore

import (
	"context"
	"errors"
)

var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrVersionConflict    = errors.New("version conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrConflict           = errors.New("too many concurrent writers")
	ErrNotFound           = errors.New("document not found")
	ErrLocked             = errors.New("store is locked by another process")
)

// KVStore is a durable string store. Every successful write bumps the key's
// version; version 0 stands for an absent key.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, version int64, err error)
	Set(ctx context.Context, key, value string) error
	CompareAndSwap(ctx context.Context, key, value string, version int64) error
	Remove(ctx context.Context, key string) error
	Close() error
}
