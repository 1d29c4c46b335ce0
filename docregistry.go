package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/gamma-omg/rag-chat/docstore"
	"github.com/gamma-omg/rag-chat/readers"
)

type DocStore interface {
	Insert(ctx context.Context, doc docstore.Document) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]docstore.Document, error)
}

type Chunkifier interface {
	Chunkify(text string) []string
}

// DocRegistry turns uploaded files into stored, chunked documents and keeps
// the optional inbox directory in sync with the store.
type DocRegistry struct {
	log              *slog.Logger
	store            DocStore
	chunkifier       Chunkifier
	readers          []readers.FileReader
	inbox            string
	mergeEventsDelay time.Duration
	now              func() time.Time
}

func NewDocRegistry(store DocStore, chunkifier Chunkifier, log *slog.Logger) *DocRegistry {
	return &DocRegistry{
		log:        log,
		store:      store,
		chunkifier: chunkifier,
		now:        time.Now,
	}
}

func (dr *DocRegistry) RegisterReader(readers ...readers.FileReader) {
	dr.readers = append(dr.readers, readers...)
}

// WatchInbox sets the directory used by Sync and Watch. Events on the same
// file within delay are merged.
func (dr *DocRegistry) WatchInbox(dir string, delay time.Duration) {
	dr.inbox = dir
	dr.mergeEventsDelay = delay
}

// Ingest extracts, chunks and stores f. Nothing is stored on failure.
func (dr *DocRegistry) Ingest(ctx context.Context, f readers.File) (docstore.Document, error) {
	return dr.ingest(ctx, f, "")
}

func (dr *DocRegistry) ingest(ctx context.Context, f readers.File, source string) (docstore.Document, error) {
	reader, err := dr.findReader(f)
	if err != nil {
		return docstore.Document{}, err
	}

	text, err := reader.ReadText(f)
	if err != nil {
		if !errors.Is(err, readers.ErrExtraction) {
			err = fmt.Errorf("%w: %s: %w", readers.ErrExtraction, f.Name, err)
		}
		return docstore.Document{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to generate document id: %w", err)
	}

	doc := docstore.Document{
		ID:         id.String(),
		Filename:   f.Name,
		Content:    text,
		Chunks:     dr.chunkifier.Chunkify(text),
		UploadedAt: dr.now().UTC(),
		Source:     source,
	}

	if err := dr.store.Insert(ctx, doc); err != nil {
		return docstore.Document{}, fmt.Errorf("failed to store document %s: %w", f.Name, err)
	}

	dr.log.Info("document ingested", "id", doc.ID, "file", doc.Filename, "chunks", len(doc.Chunks))
	return doc, nil
}

func (dr *DocRegistry) IngestPath(ctx context.Context, path string) (docstore.Document, error) {
	f, err := readers.ReadFile(path)
	if err != nil {
		return docstore.Document{}, err
	}

	return dr.Ingest(ctx, f)
}

// ingestInbox stores an inbox file tagged with its path, so later inbox
// events only touch documents that came from the inbox.
func (dr *DocRegistry) ingestInbox(ctx context.Context, path string) (docstore.Document, error) {
	f, err := readers.ReadFile(path)
	if err != nil {
		return docstore.Document{}, err
	}

	return dr.ingest(ctx, f, inboxSource(path))
}

func (dr *DocRegistry) Remove(ctx context.Context, id string) error {
	if err := dr.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove document %s: %w", id, err)
	}

	dr.log.Info("document removed", "id", id)
	return nil
}

func (dr *DocRegistry) List(ctx context.Context) ([]docstore.Document, error) {
	return dr.store.List(ctx)
}

// Sync ingests every inbox file that has not been picked up from the inbox
// yet. Files that cannot be read are logged and skipped. An unreadable
// collection is treated as empty.
func (dr *DocRegistry) Sync(ctx context.Context) error {
	if dr.inbox == "" {
		return nil
	}

	entries, err := os.ReadDir(dr.inbox)
	if err != nil {
		return fmt.Errorf("failed to read inbox %s: %w", dr.inbox, err)
	}

	docs, err := dr.store.List(ctx)
	if err != nil {
		if !errors.Is(err, docstore.ErrStorageUnavailable) {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		dr.log.Warn("document collection unreadable, syncing inbox as empty", "error", err)
	}

	stored := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.Source != "" {
			stored[d.Source] = true
		}
	}

	for _, e := range entries {
		path := filepath.Join(dr.inbox, e.Name())
		if e.IsDir() || isHidden(e.Name()) || stored[inboxSource(path)] {
			continue
		}

		_, err := dr.ingestInbox(ctx, path)
		if errors.Is(err, readers.ErrUnsupportedFileType) {
			dr.log.Warn("unsupported file", "file", e.Name())
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			dr.log.Error("failed to ingest inbox file", "file", e.Name(), "error", err)
		}
	}

	return nil
}

// Watch keeps the store in step with the inbox until ctx is done. A created or
// written file replaces the documents previously picked up from that path; a
// removed or renamed one drops them. Documents uploaded directly are never
// touched.
func (dr *DocRegistry) Watch(ctx context.Context) error {
	if dr.inbox == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dr.inbox); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dr.inbox, err)
	}

	// path -> file still present
	pending := make(map[string]bool)
	timer := time.NewTimer(dr.mergeEventsDelay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if isHidden(filepath.Base(ev.Name)) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[ev.Name] = true
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				pending[ev.Name] = false
			default:
				continue
			}
			timer.Reset(dr.mergeEventsDelay)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			dr.log.Warn("inbox watcher error", "error", err)

		case <-timer.C:
			for path, present := range pending {
				dr.apply(ctx, path, present)
			}
			pending = make(map[string]bool)
		}
	}
}

func (dr *DocRegistry) apply(ctx context.Context, path string, present bool) {
	name := filepath.Base(path)

	if present {
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			present = false
		case err != nil:
			dr.log.Error("failed to stat inbox file", "file", name, "error", err)
			return
		case info.IsDir():
			return
		}
	}

	keep := ""
	if present {
		doc, err := dr.ingestInbox(ctx, path)
		if errors.Is(err, readers.ErrUnsupportedFileType) {
			dr.log.Warn("unsupported file", "file", name)
			return
		}
		if err != nil {
			dr.log.Error("failed to ingest inbox file", "file", name, "error", err)
			return
		}
		keep = doc.ID
	}

	if err := dr.removeBySource(ctx, inboxSource(path), keep); err != nil {
		dr.log.Error("failed to remove stale documents", "file", name, "error", err)
	}
}

func (dr *DocRegistry) removeBySource(ctx context.Context, source, keep string) error {
	docs, err := dr.store.List(ctx)
	if err != nil {
		return err
	}

	for _, d := range docs {
		if d.Source != source || d.ID == keep {
			continue
		}
		if err := dr.Remove(ctx, d.ID); err != nil {
			return err
		}
	}

	return nil
}

func (dr *DocRegistry) findReader(f readers.File) (readers.FileReader, error) {
	for _, r := range dr.readers {
		if r.CanRead(f) {
			return r, nil
		}
	}

	return nil, fmt.Errorf("%w: %s (%s)", readers.ErrUnsupportedFileType, f.Name, readers.DetectType(f))
}

func inboxSource(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
