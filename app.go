package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gamma-omg/rag-chat/backends"
	"github.com/gamma-omg/rag-chat/docstore"
	"github.com/gamma-omg/rag-chat/readers"
)

// app holds the components shared by every command, built from one Config.
type app struct {
	cfg      *Config
	log      *slog.Logger
	closers  []io.Closer
	store    *docstore.Store
	registry *DocRegistry
	ranker   *Ranker
}

func openApp(cfgPath string) (*app, error) {
	cfg, err := readConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := newLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	kv, err := openKV(cfg.Storage)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	store := docstore.NewStore(kv, cfg.Storage.Key, log)

	reg := NewDocRegistry(store, NewChunkifier(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapWords), log)
	reg.RegisterReader(&readers.TxtFileReader{}, readers.NewDocxFileReader(), readers.NewODTFileReader())
	reg.WatchInbox(cfg.Inbox.Dir, time.Duration(cfg.Inbox.MergeEventsMs)*time.Millisecond)

	return &app{
		cfg:      cfg,
		log:      log,
		closers:  []io.Closer{kv, logCloser},
		store:    store,
		registry: reg,
		ranker:   NewRanker(store, cfg.Ranking, log),
	}, nil
}

func openKV(cfg StorageConfig) (docstore.KVStore, error) {
	switch cfg.Driver {
	case DriverMemory:
		return docstore.NewMemoryKV(), nil
	case DriverSQLite:
		kv, err := docstore.OpenSQLiteKV(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage %s: %w", cfg.Path, err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *app) assistant() (*Assistant, error) {
	variant, err := a.cfg.BackendVariant()
	if err != nil {
		return nil, err
	}

	backend, err := backends.New(variant)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	return NewAssistant(a.ranker, backend, a.cfg.Chat, a.cfg.Ranking.MaxChunks, a.log), nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}

	return errors.Join(errs...)
}
