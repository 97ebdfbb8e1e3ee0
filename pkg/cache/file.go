package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDebounceWindow is how long writes coalesce before a flush.
const DefaultDebounceWindow = 5 * time.Second

// FileStore keeps the cache in memory and persists it as a single JSON
// object at a fixed path. Writes are debounced: the first Set after a
// flush schedules one deferred flush, later Sets inside the window ride
// along with it.
type FileStore struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	entries   map[string]string
	dirty     bool
	pending   *time.Timer
	gen       uint64
	destroyed bool
}

// FileOptions configures a FileStore.
type FileOptions struct {
	Path           string
	DebounceWindow time.Duration
	Logger         zerolog.Logger
}

// OpenFile opens the cache file at opts.Path, loading entries left behind
// by an interrupted attempt of the same run. A missing file starts empty;
// an unreadable one is logged and ignored.
func OpenFile(opts FileOptions) (*FileStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}

	s := &FileStore{
		path:     opts.Path,
		debounce: opts.DebounceWindow,
		logger:   opts.Logger,
		entries:  make(map[string]string),
	}

	entries, err := readEntries(opts.Path)
	switch {
	case err == nil:
		s.entries = entries
		CacheEntries.WithLabelValues("file").Set(float64(len(entries)))
		s.logger.Debug().
			Str("path", opts.Path).
			Int("entries", len(entries)).
			Msg("Loaded response cache")
	case errors.Is(err, os.ErrNotExist):
	default:
		CacheErrors.WithLabelValues("load").Inc()
		s.logger.Warn().Err(err).Str("path", opts.Path).Msg("Ignoring unreadable response cache")
	}

	return s, nil
}

func readEntries(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return entries, nil
}

// Path returns the location of the cache file.
func (s *FileStore) Path() string {
	return s.path
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	body, ok := s.entries[key]
	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues("file").Inc()
	return []byte(body), nil
}

// Set implements Store.
func (s *FileStore) Set(_ context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	s.entries[key] = string(body)
	s.dirty = true
	CacheEntries.WithLabelValues("file").Set(float64(len(s.entries)))

	if s.pending == nil {
		gen := s.gen
		s.pending = time.AfterFunc(s.debounce, func() { s.flushDeferred(gen) })
	}
	return nil
}

func (s *FileStore) flushDeferred(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A Flush or Destroy already superseded this timer.
	if gen != s.gen || s.destroyed {
		return
	}
	s.pending = nil
	s.gen++
	if err := s.flushLocked(); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Deferred cache flush failed")
	}
}

// Flush implements Store.
func (s *FileStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	s.stopPendingLocked()
	return s.flushLocked()
}

// Destroy implements Store. The store is unusable afterwards.
func (s *FileStore) Destroy(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil
	}
	s.stopPendingLocked()
	flushErr := s.flushLocked()

	s.destroyed = true
	s.entries = nil
	CacheEntries.WithLabelValues("file").Set(0)

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("remove cache file: %w", err)
	}
	if flushErr != nil {
		s.logger.Debug().Err(flushErr).Msg("Final flush failed before cache removal")
	}
	return nil
}

func (s *FileStore) stopPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.gen++
}

// flushLocked writes the entries when dirty. Caller holds s.mu.
func (s *FileStore) flushLocked() error {
	if !s.dirty {
		return nil
	}

	data, err := json.Marshal(s.entries)
	if err != nil {
		CacheErrors.WithLabelValues("flush").Inc()
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		CacheErrors.WithLabelValues("flush").Inc()
		return err
	}

	s.dirty = false
	CacheFlushes.Inc()
	s.logger.Debug().
		Str("path", s.path).
		Int("entries", len(s.entries)).
		Msg("Flushed response cache")
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}
