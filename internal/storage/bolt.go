package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// boltBackend stores records in one bucket per database. Keys are the
// big-endian creation time followed by a sequence number, so a reverse
// cursor yields newest first.
type boltBackend struct {
	db     *bbolt.DB
	bucket []byte
}

func openBolt(uri, dbName string) (backend, error) {
	path := pathOf(uri)
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bolt path is empty")
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	return &boltBackend{db: db, bucket: []byte(databaseOrDefault(dbName))}, nil
}

func (b *boltBackend) Ping(context.Context) error {
	return b.db.View(func(*bbolt.Tx) error { return nil })
}

func (b *boltBackend) Insert(_ context.Context, rec Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		seq, err := bkt.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		key := make([]byte, 16)
		binary.BigEndian.PutUint64(key[:8], uint64(rec.CreatedAt.UnixNano()))
		binary.BigEndian.PutUint64(key[8:], seq)
		return bkt.Put(key, val)
	})
}

func (b *boltBackend) Find(ctx context.Context, q Query) ([]Record, error) {
	out := make([]Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(b.bucket)
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, v := c.Last(); k != nil && len(out) < q.Limit; k, v = c.Prev() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if q.matches(rec) {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan logs: %w", err)
	}
	return out, nil
}

func (b *boltBackend) Close(context.Context) error {
	return b.db.Close()
}
