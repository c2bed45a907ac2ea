package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"substrate-nft-lab/internal/storage"
)

func TestKVStore_GetSet(t *testing.T) {
	s := NewKVStore()
	defer s.Close()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want v1", got)
	}

	// Returned slice is a copy.
	got[0] = 'X'
	again, _ := s.Get(ctx, "k")
	if string(again) != "v1" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestKVStore_WatchExternalOnly(t *testing.T) {
	s := NewKVStore()
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx, "k")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Own writes do not fire the watcher.
	if err := s.Set(ctx, "k", []byte("own")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	select {
	case v := <-ch:
		t.Fatalf("own write must not notify watchers, got %q", v)
	case <-time.After(50 * time.Millisecond):
	}

	s.NotifyExternal("k", []byte("external"))
	select {
	case v := <-ch:
		if string(v) != "external" {
			t.Errorf("got %q, want external", v)
		}
	case <-time.After(time.Second):
		t.Fatal("external change not delivered")
	}
}

func TestKVStore_CloseClosesWatchers(t *testing.T) {
	s := NewKVStore()
	ctx := context.Background()

	ch, err := s.Watch(ctx, "k")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("watcher channel not closed")
	}
}
