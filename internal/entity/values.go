package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/singleflight"

	"salesql/internal/cache"
	"salesql/internal/logging"
	"salesql/internal/observability"
	"salesql/internal/sqlutil"
)

// DefaultDistinctLimit caps the distinct values fetched per column.
const DefaultDistinctLimit = 4000

// DistinctKeyPrefix prefixes every distinct-value cache key.
const DistinctKeyPrefix = "salesql:distinct:"

// distinctFetchTimeout bounds a shared lookup once it no longer follows the
// first caller's context.
const distinctFetchTimeout = 30 * time.Second

// ErrNoConnection is reported when no database is available for lookups.
var ErrNoConnection = errors.New("no database connection available")

// ValueSource returns up to limit distinct non-null values of table.column.
type ValueSource interface {
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
}

// Queryer provides query access for value lookups.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DBValues reads distinct values straight from Postgres.
type DBValues struct {
	db     Queryer
	schema string
}

// NewDBValues creates a ValueSource over db. An empty schema leaves table
// names unqualified.
func NewDBValues(db Queryer, schema string) *DBValues {
	return &DBValues{db: db, schema: schema}
}

// Schema returns the schema used to qualify tables.
func (d *DBValues) Schema() string {
	return d.schema
}

// DistinctValues implements ValueSource. Values are cast to text and trimmed.
func (d *DBValues) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if d == nil || d.db == nil {
		return nil, ErrNoConnection
	}
	if limit <= 0 {
		limit = DefaultDistinctLimit
	}

	from := sqlutil.QuoteIdentifier(table)
	if d.schema != "" {
		from = sqlutil.QuoteIdentifier(d.schema) + "." + from
	}
	col := sqlutil.QuoteIdentifier(column)

	query, args, err := sq.Select(fmt.Sprintf("DISTINCT CAST(%s AS TEXT)", col)).
		From(from).
		Where(col + " IS NOT NULL").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct values for %s.%s: %w", table, column, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	values := make([]string, 0)
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if !v.Valid {
			continue
		}
		if s := strings.TrimSpace(v.String); s != "" {
			values = append(values, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// CachedValues memoizes a ValueSource in a cache.Store. Concurrent misses for
// the same key share one lookup.
type CachedValues struct {
	source    ValueSource
	store     cache.Store
	namespace string
	ttl       time.Duration
	group     singleflight.Group
}

// NewCachedValues wraps source. namespace identifies the connection and
// schema so that different databases never share entries.
func NewCachedValues(source ValueSource, store cache.Store, namespace string, ttl time.Duration) *CachedValues {
	return &CachedValues{source: source, store: store, namespace: namespace, ttl: ttl}
}

// Key returns the cache key for a lookup.
func (c *CachedValues) Key(table, column string, limit int) string {
	return DistinctKeyPrefix + c.namespace + ":" + table + "." + column + ":" + strconv.Itoa(limit)
}

// DistinctValues implements ValueSource.
func (c *CachedValues) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultDistinctLimit
	}
	key := c.Key(table, column, limit)
	metrics := observability.AssistantMetricsFromContext(ctx)
	logger := logging.FromContext(ctx)

	if values, ok := c.lookup(ctx, key); ok {
		metrics.RecordDistinctCacheHit(ctx, table)
		return values, nil
	}
	metrics.RecordDistinctCacheMiss(ctx, table)

	// The shared fetch outlives any single caller's cancellation.
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), distinctFetchTimeout)
		defer cancel()
		values, err := c.source.DistinctValues(fetchCtx, table, column, limit)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(values)
		if err == nil {
			err = c.store.Set(fetchCtx, key, payload, c.ttl)
		}
		if err != nil {
			logger.Warn("failed to cache distinct values", "table", table, "column", column, "error", err)
		}
		return values, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *CachedValues) lookup(ctx context.Context, key string) ([]string, bool) {
	payload, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logging.FromContext(ctx).Warn("distinct value cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var values []string
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, false
	}
	return values, true
}

// InvalidateAll drops every cached distinct-value list and returns the
// number of entries removed.
func (c *CachedValues) InvalidateAll(ctx context.Context) (int, error) {
	removed, err := c.store.DeleteByPrefix(ctx, DistinctKeyPrefix)
	if err != nil {
		return removed, fmt.Errorf("invalidate distinct cache: %w", err)
	}
	observability.AssistantMetricsFromContext(ctx).RecordCacheInvalidated(ctx, removed)
	return removed, nil
}
