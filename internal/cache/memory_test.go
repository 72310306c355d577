package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, time.Hour)

	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() on empty store error = %v, want ErrMiss", err)
	}

	want := &Entry{StatusCode: 200, ContentType: "image/jpeg", Body: []byte("jpeg")}
	if err := m.Set(ctx, "a", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := m.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.StatusCode != 200 || got.ContentType != "image/jpeg" || string(got.Body) != "jpeg" {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "a", &Entry{StatusCode: 200, Body: []byte("x")}); err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Second)
	if _, err := m.Get(ctx, "a"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	now = now.Add(time.Second)
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() after expiry error = %v, want ErrMiss", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry removed", m.Len())
	}
}

func TestMemory_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, 0)

	for _, k := range []string{"a", "b", "c"} {
		if err := m.Set(ctx, k, &Entry{StatusCode: 200, Body: []byte(k)}); err != nil {
			t.Fatal(err)
		}
	}

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Errorf("oldest entry should be evicted, Get(a) error = %v", err)
	}
	for _, k := range []string{"b", "c"} {
		if _, err := m.Get(ctx, k); err != nil {
			t.Errorf("Get(%s) error = %v", k, err)
		}
	}
}

func TestMemory_SetReplaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, 0)

	_ = m.Set(ctx, "a", &Entry{StatusCode: 200, Body: []byte("old")})
	_ = m.Set(ctx, "b", &Entry{StatusCode: 200, Body: []byte("b")})
	_ = m.Set(ctx, "a", &Entry{StatusCode: 200, Body: []byte("new")})
	_ = m.Set(ctx, "c", &Entry{StatusCode: 200, Body: []byte("c")})

	// "a" was rewritten after "b", so "b" is now the oldest.
	if _, err := m.Get(ctx, "b"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get(b) error = %v, want ErrMiss", err)
	}
	got, err := m.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get(a) error = %v", err)
	}
	if string(got.Body) != "new" {
		t.Errorf("Get(a).Body = %q, want %q", got.Body, "new")
	}
}

func TestMemory_Close(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0, 0)
	_ = m.Set(ctx, "a", &Entry{StatusCode: 200, Body: []byte("a")})

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", m.Len())
	}
}
