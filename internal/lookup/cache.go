package lookup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eargollo/shelfscan/internal/metrics"
)

// Cache keeps found records in the lookup_cache table for TTL. Misses and
// errors are never cached, so a code added to the inventory shows up on the
// next scan.
type Cache struct {
	db        *sql.DB
	next      Lookuper
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

// NewCache wraps next. namespace separates entries of differently configured
// sources sharing one database.
func NewCache(db *sql.DB, next Lookuper, namespace string, ttl time.Duration) *Cache {
	return &Cache{db: db, next: next, namespace: namespace, ttl: ttl, now: time.Now}
}

func (c *Cache) Lookup(ctx context.Context, code string) (*Record, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	if rec, ok := c.get(ctx, code); ok {
		metrics.LookupCacheTotal.WithLabelValues("hit").Inc()
		return rec, nil
	}
	metrics.LookupCacheTotal.WithLabelValues("miss").Inc()

	rec, err := c.next.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := c.put(ctx, code, rec); err != nil {
		slog.Warn("lookup cache: store", "code", code, "error", err)
	}
	return rec, nil
}

func (c *Cache) get(ctx context.Context, code string) (*Record, bool) {
	var (
		rec       Record
		created   sql.NullInt64
		fields    string
		fetchedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT record_id, created_time, fields, source, fetched_at
		   FROM lookup_cache WHERE namespace = ? AND code = ?`,
		c.namespace, code).Scan(&rec.ID, &created, &fields, &rec.Source, &fetchedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("lookup cache: query", "code", code, "error", err)
		}
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(time.UnixMilli(fetchedAt)) >= c.ttl {
		return nil, false
	}
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		slog.Warn("lookup cache: corrupt entry", "code", code, "error", err)
		return nil, false
	}
	if created.Valid {
		rec.CreatedTime = time.UnixMilli(created.Int64).UTC()
	}
	return &rec, true
}

func (c *Cache) put(ctx context.Context, code string, rec *Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	var created sql.NullInt64
	if !rec.CreatedTime.IsZero() {
		created = sql.NullInt64{Int64: rec.CreatedTime.UnixMilli(), Valid: true}
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO lookup_cache (namespace, code, record_id, created_time, fields, source, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, code) DO UPDATE SET
		   record_id = excluded.record_id,
		   created_time = excluded.created_time,
		   fields = excluded.fields,
		   source = excluded.source,
		   fetched_at = excluded.fetched_at`,
		c.namespace, code, rec.ID, created, string(fields), rec.Source, c.now().UnixMilli())
	return err
}

// Purge deletes entries older than the TTL and returns how many went.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.ttl).UnixMilli()
	res, err := c.db.ExecContext(ctx, `DELETE FROM lookup_cache WHERE fetched_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge lookup cache: %w", err)
	}
	return res.RowsAffected()
}
