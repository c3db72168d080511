package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sheetpulse/sheetpulse/internal/table"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

var sample = table.Raw{{"日期", "违规率"}, {"2025-01-01", 0.1}}

func TestPutAndGet(t *testing.T) {
	c := New(time.Minute)
	c.Put("y7kzwF", sample)

	got, ok := c.Get("y7kzwF")
	if !ok {
		t.Fatal("Get: expected entry, got none")
	}
	if len(got) != 2 {
		t.Errorf("rows: got %d, want 2", len(got))
	}
}

func TestGet_Missing(t *testing.T) {
	c := New(time.Minute)
	if _, ok := c.Get("unknown"); ok {
		t.Fatal("Get on empty cache: expected false, got true")
	}
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute)
	c.now = fixedClock(base)
	c.Put("s", sample)

	c.now = fixedClock(base.Add(59 * time.Second))
	if _, ok := c.Get("s"); !ok {
		t.Error("Get within TTL: expected hit")
	}

	c.now = fixedClock(base.Add(time.Minute))
	if _, ok := c.Get("s"); ok {
		t.Error("Get at TTL: expected miss")
	}
}

func TestEvict(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute)

	c.now = fixedClock(base.Add(-2 * time.Minute))
	c.Put("old", sample)
	c.now = fixedClock(base)
	c.Put("new", sample)

	if n := c.Evict(base); n != 1 {
		t.Errorf("Evict: removed %d, want 1", n)
	}
	if c.Count() != 1 {
		t.Errorf("Count after evict: got %d, want 1", c.Count())
	}
}

func TestInvalidate(t *testing.T) {
	c := New(time.Minute)
	c.Put("s", sample)
	c.Invalidate("s")
	if _, ok := c.Get("s"); ok {
		t.Error("Get after Invalidate: expected miss")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); c.Put("s", sample) }()
		go func() { defer wg.Done(); c.Get("s") }()
	}
	wg.Wait()
}

// countingSource counts fetches and returns a fixed result.
type countingSource struct {
	mu    sync.Mutex
	calls int
	raw   table.Raw
	err   error
}

func (s *countingSource) Fetch(context.Context, string) (table.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.raw, s.err
}

func TestCached_HitAvoidsFetch(t *testing.T) {
	src := &countingSource{raw: sample}
	s := Wrap(src, New(time.Minute))

	for i := 0; i < 3; i++ {
		if _, err := s.Fetch(context.Background(), "s"); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if src.calls != 1 {
		t.Errorf("source calls: got %d, want 1", src.calls)
	}
}

func TestCached_ErrorsNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("token expired")}
	s := Wrap(src, New(time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := s.Fetch(context.Background(), "s"); err == nil {
			t.Fatal("Fetch: expected error")
		}
	}
	if src.calls != 2 {
		t.Errorf("source calls: got %d, want 2", src.calls)
	}
}

func TestCached_HeaderOnlyNotCached(t *testing.T) {
	src := &countingSource{raw: table.Raw{{"日期"}}}
	c := New(time.Minute)
	s := Wrap(src, c)

	_, _ = s.Fetch(context.Background(), "s")
	_, _ = s.Fetch(context.Background(), "s")
	if src.calls != 2 {
		t.Errorf("source calls: got %d, want 2", src.calls)
	}
	if c.Count() != 0 {
		t.Errorf("Count: got %d, want 0", c.Count())
	}
}
