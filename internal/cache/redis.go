// Package cache implements catalog caches on Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/caja/internal/domain/catalog"
)

const storeKeyPrefix = "caja:store:"

// storeEntry is the cached JSON form of a store.
type storeEntry struct {
	ID          string `json:"id"`
	Code        string `json:"codigo"`
	Name        string `json:"nombre"`
	WarehouseID string `json:"almacen_id,omitempty"`
	Active      bool   `json:"activo"`
}

// Stores caches resolved stores in Redis.
type Stores struct {
	client redis.UniversalClient
}

var _ catalog.StoreCache = (*Stores)(nil)

// NewStores returns a store cache backed by client.
func NewStores(client redis.UniversalClient) *Stores {
	return &Stores{client: client}
}

// Dial parses a redis:// URL and returns a connected client.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

func (c *Stores) GetStore(ctx context.Context, id string) (*catalog.Store, bool, error) {
	raw, err := c.client.Get(ctx, storeKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get store")
	}

	var e storeEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, errors.Wrap(err, "decode store")
	}
	return &catalog.Store{
		ID:          e.ID,
		Code:        e.Code,
		Name:        e.Name,
		WarehouseID: e.WarehouseID,
		Active:      e.Active,
	}, true, nil
}

func (c *Stores) SetStore(ctx context.Context, s *catalog.Store, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	payload, err := json.Marshal(storeEntry{
		ID:          s.ID,
		Code:        s.Code,
		Name:        s.Name,
		WarehouseID: s.WarehouseID,
		Active:      s.Active,
	})
	if err != nil {
		return errors.Wrap(err, "encode store")
	}
	return c.client.Set(ctx, storeKeyPrefix+s.ID, payload, ttl).Err()
}

// Invalidate drops cached stores.
func (c *Stores) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = storeKeyPrefix + id
	}
	return c.client.Del(ctx, keys...).Err()
}
