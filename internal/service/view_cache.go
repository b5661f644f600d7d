package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const viewCacheKeyPrefix = "ticket:view:"

// ViewCache keeps recently built ticket views in Redis so polling clients
// do not hammer postgres. The short TTL bounds staleness of the live SLA
// numbers; every write invalidates the entry. Redis being down degrades to
// direct reads.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewViewCache constructs the cache. A nil client disables caching.
func NewViewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ViewCache {
	return &ViewCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached view for a ticket, if present.
func (c *ViewCache) Get(ctx context.Context, ticketID string) (*TicketView, bool) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return nil, false
	}
	payload, err := c.client.Get(ctx, viewCacheKeyPrefix+ticketID).Bytes()
	if err != nil {
		return nil, false
	}
	var view TicketView
	if err := json.Unmarshal(payload, &view); err != nil {
		return nil, false
	}
	return &view, true
}

// Set stores a freshly built view.
func (c *ViewCache) Set(ctx context.Context, ticketID string, view *TicketView) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, viewCacheKeyPrefix+ticketID, payload, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Debug("view cache set failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// Invalidate drops the cached view after a write.
func (c *ViewCache) Invalidate(ctx context.Context, ticketID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, viewCacheKeyPrefix+ticketID).Err(); err != nil && c.logger != nil {
		c.logger.Debug("view cache invalidate failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}
