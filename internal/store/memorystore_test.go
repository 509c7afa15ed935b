package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/HubConnect/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore()
	s.now = clock.Now
	return s, clock
}

func TestMemoryStoreSetGetExpire(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore()

	if err := s.Set(ctx, "hubspot_state:o1:u1", []byte("nonce"), 600*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := s.Get(ctx, "hubspot_state:o1:u1")
	if err != nil || !ok || string(got) != "nonce" {
		t.Fatalf("Get() = %q, %v, %v", got, ok, err)
	}

	clock.Advance(599 * time.Second)
	if _, ok, _ = s.Get(ctx, "hubspot_state:o1:u1"); !ok {
		t.Fatalf("entry expired too early")
	}
	clock.Advance(time.Second)
	if _, ok, _ = s.Get(ctx, "hubspot_state:o1:u1"); ok {
		t.Fatalf("entry should have expired")
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry not purged")
	}
}

func TestMemoryStoreZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore()
	_ = s.Set(ctx, "k", []byte("v"), 0)
	clock.Advance(24 * time.Hour)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatalf("zero ttl entry expired")
	}
}

func TestMemoryStoreTakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore()
	_ = s.Set(ctx, "creds", []byte(`{"access_token":"a"}`), time.Minute)

	got, ok, err := s.Take(ctx, "creds")
	if err != nil || !ok || string(got) != `{"access_token":"a"}` {
		t.Fatalf("Take() = %q, %v, %v", got, ok, err)
	}
	if _, ok, _ = s.Take(ctx, "creds"); ok {
		t.Fatalf("second Take() should miss")
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore()
	value := []byte("abc")
	_ = s.Set(ctx, "k", value, 0)
	value[0] = 'x'

	got, _, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
	got[1] = 'y'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliased stored slice: %q", again)
	}
}

func TestMemoryStoreDeleteMissingKey(t *testing.T) {
	s, _ := newTestMemoryStore()
	if err := s.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestNilMemoryStore(t *testing.T) {
	var s *MemoryStore
	if err := s.Set(context.Background(), "k", nil, 0); err != ErrNotInitialized {
		t.Fatalf("Set() on nil store error = %v", err)
	}
}

func TestOpenWithoutDSNReturnsMemoryStore(t *testing.T) {
	kv, err := Open(context.Background(), config.StoreConfig{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = kv.Close() }()
	if _, ok := kv.(*MemoryStore); !ok {
		t.Fatalf("Open() returned %T, want *MemoryStore", kv)
	}
}
