package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit || data != nil {
		t.Error("NullCache.Get should always miss")
	}
	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if _, hit, _ = c.Get(ctx, "key"); hit {
		t.Error("NullCache should not store data")
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}

	if _, hit, err := c.Get(ctx, "render:abc"); err != nil || hit {
		t.Fatalf("Get(missing) = hit %v, err %v", hit, err)
	}
	if err := c.Set(ctx, "render:abc", []byte("records"), time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "render:abc")
	if err != nil || !hit || string(data) != "records" {
		t.Fatalf("Get() = %q, %v, %v, want records", data, hit, err)
	}

	if err := c.Delete(ctx, "render:abc"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "render:abc"); hit {
		t.Error("Get after Delete should miss")
	}
	if err := c.Delete(ctx, "render:abc"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}

	if err := c.Set(ctx, "forever", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "forever"); !hit {
		t.Error("entry without ttl should not expire")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	path := c.path("k")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte{0xff, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("Get(corrupt) = hit %v, err %v, want miss", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	entries, _ := os.ReadDir(c.Dir())
	if len(entries) != 0 {
		t.Errorf("cache dir has %d entries after Clear", len(entries))
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, BackendFile, t.TempDir())
	if err != nil {
		t.Fatalf("Open(file) error: %v", err)
	}
	if _, ok := c.(*FileCache); !ok {
		t.Errorf("Open(file) = %T, want *FileCache", c)
	}
	if c, _ := Open(ctx, BackendNone, ""); c != NewNullCache() {
		t.Errorf("Open(none) = %T, want NullCache", c)
	}
	if _, err := Open(ctx, "memcached", ""); err == nil || !strings.Contains(err.Error(), "unknown cache backend") {
		t.Errorf("Open(memcached) error = %v", err)
	}
	if _, err := Open(ctx, BackendRedis, "http://not-redis"); err == nil {
		t.Error("Open(redis) with a bad URL should fail")
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()
	base := RenderKeyOpts{
		Config:   []byte("cfg"),
		Variants: []string{"python=3.6"},
		Env:      map[string]string{"HOME": "/root", "USER": "me"},
	}

	key := k.RenderKey("digest", base)
	if !strings.HasPrefix(key, "render:") {
		t.Errorf("RenderKey() = %q, want render: prefix", key)
	}

	same := RenderKeyOpts{
		Config:   []byte("cfg"),
		Variants: []string{"python=3.6"},
		Env:      map[string]string{"USER": "me", "HOME": "/root"},
	}
	if k.RenderKey("digest", same) != key {
		t.Error("RenderKey should not depend on map order")
	}

	changes := map[string]RenderKeyOpts{
		"config":   {Config: []byte("other"), Variants: base.Variants, Env: base.Env},
		"variants": {Config: base.Config, Variants: []string{"python=2.7"}, Env: base.Env},
		"env":      {Config: base.Config, Variants: base.Variants, Env: map[string]string{"HOME": "/home"}},
		"flags":    {Config: base.Config, Variants: base.Variants, Env: base.Env, Flags: []string{"no-finalize"}},
	}
	for name, opts := range changes {
		if k.RenderKey("digest", opts) == key {
			t.Errorf("changing %s should change the key", name)
		}
	}
	if k.RenderKey("other", base) == key {
		t.Error("changing the digest should change the key")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "channel:main:")
	key := scoped.RenderKey("digest", RenderKeyOpts{})
	if !strings.HasPrefix(key, "channel:main:render:") {
		t.Errorf("ScopedKeyer RenderKey should be prefixed: %s", key)
	}

	nilInner := NewScopedKeyer(nil, "p:")
	if got, want := nilInner.RenderKey("d", RenderKeyOpts{}), "p:"+NewDefaultKeyer().RenderKey("d", RenderKeyOpts{}); got != want {
		t.Errorf("RenderKey with nil inner = %q, want %q", got, want)
	}
}

func TestRetryableError(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should return nil")
	}

	err := Retryable(ErrNetwork)
	if err == nil {
		t.Fatal("Retryable should return wrapped error")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable should return true for wrapped error")
	}
	if err.Error() != ErrNetwork.Error() {
		t.Errorf("Error message should be preserved: %s", err.Error())
	}
	if !errors.Is(err, ErrNetwork) {
		t.Error("Retryable should unwrap to the original error")
	}
	if IsRetryable(errors.New("bad key")) {
		t.Error("IsRetryable should return false for unwrapped error")
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := RetryWithBackoff(ctx, func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("success: err %v, calls %d, want nil, 1", err, calls)
	}

	permanent := errors.New("bad key")
	calls = 0
	err = RetryWithBackoff(ctx, func() error {
		calls++
		return permanent
	})
	if err != permanent || calls != 1 {
		t.Errorf("permanent: err %v, calls %d, want %v, 1", err, calls, permanent)
	}

	calls = 0
	err = RetryWithBackoff(ctx, func() error {
		calls++
		if calls < 2 {
			return Retryable(ErrNetwork)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("retry: err %v, calls %d, want nil, 2", err, calls)
	}
}

func TestRetryWithBackoffContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, func() error {
		return Retryable(ErrNetwork)
	})
	if err != context.Canceled {
		t.Errorf("Should return context error: %v", err)
	}
}

func TestBackoffSchedule(t *testing.T) {
	b := Backoff{Attempts: 3, Delay: time.Millisecond}

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		return Retryable(ErrNetwork)
	})
	if !errors.Is(err, ErrNetwork) || calls != 3 {
		t.Errorf("exhausted: err %v, calls %d, want ErrNetwork, 3", err, calls)
	}

	calls = 0
	_ = Backoff{}.Retry(context.Background(), func() error {
		calls++
		return Retryable(ErrNetwork)
	})
	if calls != 1 {
		t.Errorf("zero Backoff made %d attempts, want 1", calls)
	}
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	base, err := os.UserCacheDir()
	if err != nil {
		t.Skipf("no user cache dir: %v", err)
	}
	got, err := DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir() error: %v", err)
	}
	if want := filepath.Join(base, "metarender"); got != want {
		t.Errorf("DefaultDir() = %q, want %q", got, want)
	}
}

func TestFileCacheLeavesNoTempFiles(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		if err := fc.Set(ctx, key, []byte(key), 0); err != nil {
			t.Fatalf("Set(%q) error: %v", key, err)
		}
	}
	err = filepath.WalkDir(fc.Dir(), func(path string, d os.DirEntry, err error) error {
		if err == nil && strings.HasPrefix(d.Name(), ".entry-") {
			t.Errorf("temporary file left behind: %s", path)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}
