package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisPageSize = 200

// redisBackend keeps one stream per database, newest entries at the tail.
type redisBackend struct {
	redis  *redis.Client
	stream string
}

func openRedis(uri, dbName string) (backend, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &redisBackend{
		redis:  redis.NewClient(opts),
		stream: databaseOrDefault(dbName) + ":" + Collection,
	}, nil
}

func (r *redisBackend) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

func (r *redisBackend) Insert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	if err := r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{"payload": payload},
	}).Err(); err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// Find walks the stream from the tail in pages until it has q.Limit matches
// or reaches the head.
func (r *redisBackend) Find(ctx context.Context, q Query) ([]Record, error) {
	out := make([]Record, 0)
	end := "+"
	for {
		msgs, err := r.redis.XRevRangeN(ctx, r.stream, end, "-", redisPageSize).Result()
		if err != nil {
			return nil, fmt.Errorf("xrevrange: %w", err)
		}
		fresh := 0
		for _, m := range msgs {
			if m.ID == end {
				continue
			}
			fresh++
			rec, ok := decodeStreamRecord(m.Values["payload"])
			if !ok || !q.matches(rec) {
				continue
			}
			out = append(out, rec)
			if len(out) >= q.Limit {
				return out, nil
			}
		}
		if fresh == 0 || len(msgs) < redisPageSize {
			return out, nil
		}
		end = msgs[len(msgs)-1].ID
	}
}

func (r *redisBackend) Close(context.Context) error {
	return r.redis.Close()
}

func decodeStreamRecord(raw any) (Record, bool) {
	var b []byte
	switch v := raw.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}
