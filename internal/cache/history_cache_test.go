package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatpdf/internal/model"
)

func TestHistoryCacheRoundTrip(t *testing.T) {
	rdb := newFakeRedis()
	c := NewHistoryCache(rdb, 0, 0)
	ctx := context.Background()

	if _, ok, err := c.Load(ctx, "doc-1"); err != nil || ok {
		t.Fatalf("Load on empty cache = %v, %v", ok, err)
	}

	messages := []model.ChatMessage{
		{ID: 1, DocumentID: "doc-1", Role: model.RoleUser, Content: "what is this?"},
		{ID: 2, DocumentID: "doc-1", Role: model.RoleAssistant, Content: "a paper", RetrievedChunkIDs: []string{"c1"}},
	}
	if stored, err := c.Store(ctx, "doc-1", messages); err != nil || !stored {
		t.Fatalf("Store = %v, %v", stored, err)
	}
	if ttl := rdb.ttls["chat:history:doc-1"]; ttl != 60*time.Second {
		t.Fatalf("history ttl = %v, want default 60s", ttl)
	}

	got, ok, err := c.Load(ctx, "doc-1")
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if len(got) != 2 || got[1].Content != "a paper" || got[1].RetrievedChunkIDs[0] != "c1" {
		t.Fatalf("cached history = %+v", got)
	}
}

func TestHistoryCacheInvalidateKeepsMarker(t *testing.T) {
	rdb := newFakeRedis()
	c := NewHistoryCache(rdb, time.Minute, 2*time.Second)
	ctx := context.Background()

	if _, err := c.Store(ctx, "doc-1", []model.ChatMessage{{Content: "old"}}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Invalidate(ctx, "doc-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if ttl := rdb.ttls["chat:history:dirty:doc-1"]; ttl != 2*time.Second {
		t.Fatalf("dirty ttl = %v", ttl)
	}
	if dirty, _ := c.isDirty(ctx, "doc-1"); !dirty {
		t.Fatal("invalidate removed its own dirty marker")
	}
	if _, ok, _ := c.Load(ctx, "doc-1"); ok {
		t.Fatal("invalidated page still served")
	}

	// a reader that loaded rows before the write must not repopulate
	stored, err := c.Store(ctx, "doc-1", []model.ChatMessage{{Content: "stale"}})
	if err != nil || stored {
		t.Fatalf("Store while dirty = %v, %v", stored, err)
	}
	if _, ok := rdb.strings["chat:history:doc-1"]; ok {
		t.Fatal("stale page written while dirty")
	}

	if dirty, _ := c.isDirty(ctx, "doc-2"); dirty {
		t.Fatal("marker leaked to another document")
	}
}

func TestHistoryCacheStoreAfterMarkerExpires(t *testing.T) {
	rdb := newFakeRedis()
	c := NewHistoryCache(rdb, 0, 0)
	ctx := context.Background()

	_ = c.Invalidate(ctx, "doc-1")
	delete(rdb.strings, "chat:history:dirty:doc-1")

	if stored, err := c.Store(ctx, "doc-1", []model.ChatMessage{{Content: "fresh"}}); err != nil || !stored {
		t.Fatalf("Store = %v, %v", stored, err)
	}
	if got, ok, _ := c.Load(ctx, "doc-1"); !ok || got[0].Content != "fresh" {
		t.Fatalf("Load = %+v, %v", got, ok)
	}
}

func TestHistoryCachePurgeDropsEverything(t *testing.T) {
	rdb := newFakeRedis()
	c := NewHistoryCache(rdb, 0, 0)
	ctx := context.Background()

	_, _ = c.Store(ctx, "doc-1", []model.ChatMessage{{Content: "hi"}})
	_ = c.Invalidate(ctx, "doc-1")
	if err := c.Purge(ctx, "doc-1"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(rdb.strings) != 0 {
		t.Fatalf("keys left after purge: %v", rdb.strings)
	}
}

func TestHistoryCacheWrapsRedisErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	c := NewHistoryCache(rdb, 0, 0)
	ctx := context.Background()

	if _, _, err := c.Load(ctx, "doc-1"); !errors.Is(err, rdb.err) {
		t.Fatalf("Load error = %v", err)
	}
	if _, err := c.Store(ctx, "doc-1", nil); !errors.Is(err, rdb.err) {
		t.Fatalf("Store error = %v", err)
	}
	if err := c.Invalidate(ctx, "doc-1"); !errors.Is(err, rdb.err) {
		t.Fatalf("Invalidate error = %v", err)
	}
	if err := c.Purge(ctx, "doc-1"); !errors.Is(err, rdb.err) {
		t.Fatalf("Purge error = %v", err)
	}
}
