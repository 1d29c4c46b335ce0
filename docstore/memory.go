package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/patrickmn/go-cache"
)

type memoryEntry struct {
	value   string
	version int64
}

// MemoryKV keeps values for the lifetime of the process.
type MemoryKV struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (kv *MemoryKV) Get(_ context.Context, key string) (string, int64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	e, ok := kv.get(key)
	if !ok {
		return "", 0, ErrKeyNotFound
	}

	return e.value, e.version, nil
}

func (kv *MemoryKV) Set(_ context.Context, key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	e, _ := kv.get(key)
	kv.cache.Set(key, memoryEntry{value: value, version: e.version + 1}, cache.NoExpiration)
	return nil
}

func (kv *MemoryKV) CompareAndSwap(_ context.Context, key, value string, version int64) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	e, _ := kv.get(key)
	if e.version != version {
		return fmt.Errorf("key %s at version %d, expected %d: %w", key, e.version, version, ErrVersionConflict)
	}

	kv.cache.Set(key, memoryEntry{value: value, version: version + 1}, cache.NoExpiration)
	return nil
}

func (kv *MemoryKV) Remove(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.cache.Delete(key)
	return nil
}

func (kv *MemoryKV) Close() error {
	kv.cache.Flush()
	return nil
}

func (kv *MemoryKV) get(key string) (memoryEntry, bool) {
	v, ok := kv.cache.Get(key)
	if !ok {
		return memoryEntry{}, false
	}

	return v.(memoryEntry), true
}
