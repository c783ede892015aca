package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"chatpdf/internal/model"
)

// HistoryCache keeps the newest page of a document's conversation in redis.
//
// Writers call Invalidate before a message is committed. It drops the cached
// page and leaves a short-lived dirty marker, so a reader that loaded rows
// before the commit cannot put its stale page back while the marker lives.
type HistoryCache struct {
	client         redisv9.Cmdable
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client redisv9.Cmdable, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// Load returns the cached page. A dirty document is always a miss.
func (c *HistoryCache) Load(ctx context.Context, documentID string) ([]model.ChatMessage, bool, error) {
	dirty, err := c.isDirty(ctx, documentID)
	if err != nil || dirty {
		return nil, false, err
	}

	raw, err := c.client.Get(ctx, historyKey(documentID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.ChatMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

// Store caches messages unless a write is in flight. It reports whether the
// page was stored.
func (c *HistoryCache) Store(ctx context.Context, documentID string, messages []model.ChatMessage) (bool, error) {
	dirty, err := c.isDirty(ctx, documentID)
	if err != nil || dirty {
		return false, err
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return false, fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(documentID), payload, c.historyTTL).Err(); err != nil {
		return false, fmt.Errorf("redis set history failed: %w", err)
	}
	return true, nil
}

// Invalidate marks the document dirty and then drops its cached page. The
// marker outlives the call and expires on its own.
func (c *HistoryCache) Invalidate(ctx context.Context, documentID string) error {
	if err := c.client.Set(ctx, dirtyKey(documentID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	if err := c.client.Del(ctx, historyKey(documentID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

// Purge removes every key of a deleted document.
func (c *HistoryCache) Purge(ctx context.Context, documentID string) error {
	if err := c.client.Del(ctx, historyKey(documentID), dirtyKey(documentID)).Err(); err != nil {
		return fmt.Errorf("redis purge history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) isDirty(ctx context.Context, documentID string) (bool, error) {
	n, err := c.client.Exists(ctx, dirtyKey(documentID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return n > 0, nil
}

func historyKey(documentID string) string {
	return "chat:history:" + documentID
}

func dirtyKey(documentID string) string {
	return "chat:history:dirty:" + documentID
}
