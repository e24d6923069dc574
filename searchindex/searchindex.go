// Package searchindex mirrors synced documents into Redis so lookups and
// listings do not touch the SQL store. Each document lives under its own
// key and a sorted set per (shop, resource) tracks membership, scored by
// the remote id so listings come back in id order.
package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Index struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client, prefix string) *Index {
	if prefix == "" {
		prefix = "shopsync"
	}
	return &Index{client: client, prefix: prefix}
}

// Entry is the indexed projection of a synced document.
type Entry struct {
	ID        int64           `json:"id"`
	ParentID  int64           `json:"parent_id,omitempty"`
	Title     string          `json:"title,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

func (ix *Index) docKey(shop, resource string, id int64) string {
	return fmt.Sprintf("%s:%s:%s:doc:%d", ix.prefix, shop, resource, id)
}

func (ix *Index) idsKey(shop, resource string) string {
	return fmt.Sprintf("%s:%s:%s:ids", ix.prefix, shop, resource)
}

func (ix *Index) Upsert(ctx context.Context, shop, resource string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := ix.client.Pipeline()
	pipe.Set(ctx, ix.docKey(shop, resource, e.ID), data, 0)
	pipe.ZAdd(ctx, ix.idsKey(shop, resource), redis.Z{Score: float64(e.ID), Member: e.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// BulkUpsert indexes a page of entries in one round trip.
func (ix *Index) BulkUpsert(ctx context.Context, shop, resource string, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := ix.client.Pipeline()
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.Set(ctx, ix.docKey(shop, resource, e.ID), data, 0)
		members = append(members, redis.Z{Score: float64(e.ID), Member: e.ID})
	}
	pipe.ZAdd(ctx, ix.idsKey(shop, resource), members...)
	_, err := pipe.Exec(ctx)
	return err
}

func (ix *Index) Get(ctx context.Context, shop, resource string, id int64) (*Entry, error) {
	data, err := ix.client.Get(ctx, ix.docKey(shop, resource, id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	return &e, json.Unmarshal(data, &e)
}

func (ix *Index) Delete(ctx context.Context, shop, resource string, id int64) error {
	pipe := ix.client.Pipeline()
	pipe.Del(ctx, ix.docKey(shop, resource, id))
	pipe.ZRem(ctx, ix.idsKey(shop, resource), id)
	_, err := pipe.Exec(ctx)
	return err
}

func (ix *Index) Count(ctx context.Context, shop, resource string) (int64, error) {
	return ix.client.ZCard(ctx, ix.idsKey(shop, resource)).Result()
}

// IDs returns all indexed ids for a shop and resource, ascending.
func (ix *Index) IDs(ctx context.Context, shop, resource string) ([]int64, error) {
	members, err := ix.client.ZRange(ctx, ix.idsKey(shop, resource), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// List returns entries in id order, paged by offset and limit.
func (ix *Index) List(ctx context.Context, shop, resource string, limit, offset int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	members, err := ix.client.ZRange(ctx, ix.idsKey(shop, resource),
		int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad index member %q: %w", m, err)
		}
		keys[i] = ix.docKey(shop, resource, id)
	}
	vals, err := ix.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// DeleteAll drops every indexed entry for a shop and resource.
func (ix *Index) DeleteAll(ctx context.Context, shop, resource string) error {
	ids, err := ix.IDs(ctx, shop, resource)
	if err != nil {
		return err
	}
	pipe := ix.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, ix.docKey(shop, resource, id))
	}
	pipe.Del(ctx, ix.idsKey(shop, resource))
	_, err = pipe.Exec(ctx)
	return err
}
