package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T, debounce time.Duration) *FileStore {
	t.Helper()

	store, err := OpenFile(FileOptions{
		Path:           filepath.Join(t.TempDir(), "responses.json"),
		DebounceWindow: debounce,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	t.Cleanup(func() { store.Destroy(context.Background()) })
	return store
}

func readCacheFile(t *testing.T, path string) map[string]string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache file: %v", err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("decode cache file: %v", err)
	}
	return entries
}

func TestOpenFile_RequiresPath(t *testing.T) {
	if _, err := OpenFile(FileOptions{}); err == nil {
		t.Error("OpenFile should fail without a path")
	}
}

func TestFileStore_SetAndGet(t *testing.T) {
	store := openTestStore(t, time.Hour)
	ctx := context.Background()

	if _, err := store.Get(ctx, "https://api.example/a"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}

	if err := store.Set(ctx, "https://api.example/a", []byte(`{"data":[]}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "https://api.example/a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"data":[]}` {
		t.Errorf("Get = %s, want {\"data\":[]}", got)
	}
}

func TestFileStore_FlushNow(t *testing.T) {
	store := openTestStore(t, time.Hour)
	ctx := context.Background()

	store.Set(ctx, "k1", []byte(`1`))
	store.Set(ctx, "k2", []byte(`2`))

	if _, err := os.Stat(store.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cache file should not exist before the debounce window elapses")
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	entries := readCacheFile(t, store.Path())
	if len(entries) != 2 || entries["k1"] != "1" || entries["k2"] != "2" {
		t.Errorf("persisted entries = %v", entries)
	}
}

func TestFileStore_DebouncedWritesCoalesce(t *testing.T) {
	store := openTestStore(t, 50*time.Millisecond)
	ctx := context.Background()

	before := testutil.ToFloat64(CacheFlushes)
	for i, key := range []string{"a", "b", "c", "d"} {
		if err := store.Set(ctx, key, []byte{byte('0' + i)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(store.Path()); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("deferred flush never happened")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Give a second, erroneous timer the chance to fire.
	time.Sleep(150 * time.Millisecond)

	if flushes := testutil.ToFloat64(CacheFlushes) - before; flushes != 1 {
		t.Errorf("flushes = %v, want 1", flushes)
	}
	if entries := readCacheFile(t, store.Path()); len(entries) != 4 {
		t.Errorf("persisted %d entries, want 4", len(entries))
	}
}

func TestFileStore_ReloadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.json")
	ctx := context.Background()

	first, err := OpenFile(FileOptions{Path: path, DebounceWindow: time.Hour, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	first.Set(ctx, "k", []byte(`{"ok":true}`))
	if err := first.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Simulate a restart within the same run.
	second, err := OpenFile(FileOptions{Path: path, DebounceWindow: time.Hour, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	got, err := second.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("Get = %s", got)
	}
	second.Destroy(ctx)
}

func TestFileStore_IgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := OpenFile(FileOptions{Path: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer store.Destroy(context.Background())

	if _, err := store.Get(context.Background(), "anything"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestFileStore_Destroy(t *testing.T) {
	store := openTestStore(t, time.Hour)
	ctx := context.Background()

	store.Set(ctx, "k", []byte(`1`))
	if err := store.Destroy(ctx); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	if _, err := os.Stat(store.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cache file still exists after Destroy: %v", err)
	}
	if _, err := store.Get(ctx, "k"); err != ErrDestroyed {
		t.Errorf("Get after Destroy = %v, want ErrDestroyed", err)
	}
	if err := store.Set(ctx, "k", []byte(`1`)); err != ErrDestroyed {
		t.Errorf("Set after Destroy = %v, want ErrDestroyed", err)
	}
	// Idempotent.
	if err := store.Destroy(ctx); err != nil {
		t.Errorf("second Destroy failed: %v", err)
	}
}
