package snapshot

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultAutosaveInterval is how often Autosaver writes the state.
const DefaultAutosaveInterval = 30 * time.Second

// Source produces the current state blob.
type Source func(ctx context.Context) ([]byte, error)

// Autosaver periodically saves the blob returned by a Source. Unchanged
// blobs are not written again.
type Autosaver struct {
	store    Store
	name     string
	source   Source
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last []byte
}

// AutosaveOption configures an Autosaver.
type AutosaveOption func(*Autosaver)

// WithInterval sets the save interval.
func WithInterval(d time.Duration) AutosaveOption {
	return func(a *Autosaver) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithAutosaveLogger sets the logger.
func WithAutosaveLogger(logger *slog.Logger) AutosaveOption {
	return func(a *Autosaver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAutosaver creates an autosaver writing source's blob to store as name.
func NewAutosaver(store Store, name string, source Source, opts ...AutosaveOption) *Autosaver {
	a := &Autosaver{
		store:    store,
		name:     name,
		source:   source,
		interval: DefaultAutosaveInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "autosave", "name", name)
	return a
}

// Run saves every interval until ctx is done, then saves once more.
func (a *Autosaver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.SaveNow(ctx); err != nil {
				a.logger.Warn("autosave failed", "error", err)
			}
		case <-ctx.Done():
			// Final save on a fresh context so shutdown still persists.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := a.SaveNow(flushCtx); err != nil {
				a.logger.Warn("final autosave failed", "error", err)
				return err
			}
			return nil
		}
	}
}

// SaveNow writes the current blob if it changed since the last save and
// reports whether a write happened.
func (a *Autosaver) SaveNow(ctx context.Context) (bool, error) {
	blob, err := a.source(ctx)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last != nil && bytes.Equal(a.last, blob) {
		return false, nil
	}
	if err := a.store.Save(ctx, a.name, blob); err != nil {
		return false, err
	}
	a.last = blob
	a.logger.Debug("autosaved", "bytes", len(blob))
	return true, nil
}
