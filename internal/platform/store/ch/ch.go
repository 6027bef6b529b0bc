// Package ch provides a clickhouse client used as the metric time-series store
package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config configures the clickhouse client. openers.go builds one of these
// from a DSN plus CHConfig before calling Open
type Config struct {
	Addrs    []string
	Protocol clickhouse.Protocol
	TLS      *tls.Config
	Auth     clickhouse.Auth
	Dialer   func(ctx context.Context, addr string) (net.Conn, error)
	Settings clickhouse.Settings

	ClientInfo clickhouse.ClientInfo

	DialTimeout time.Duration
	ReadTimeout time.Duration
	Compression *clickhouse.Compression

	// InsertChunk bounds how many rows PrepareBatch buffers per Send. Zero
	// means a single batch
	InsertChunk int
	// MaxRetries bounds insert attempts per batch before bisecting it (see
	// insertRetrying below); values below 1 mean a single attempt
	MaxRetries int
	// RetryBase is the starting backoff between insert retries
	RetryBase time.Duration

	Tracer QueryTracer
}

// Rows is the minimal result set iteration ch exposes, satisfied by the
// native driver's own Rows type
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() []string
	Close() error
	Err() error
}

// CH wraps a clickhouse native connection
type CH struct {
	conn   driver.Conn
	cfg    Config
	tracer QueryTracer
}

// Open dials clickhouse using the native protocol and verifies connectivity
func Open(ctx context.Context, cfg Config) (*CH, error) {
	opts := &clickhouse.Options{
		Addr:        cfg.Addrs,
		Protocol:    cfg.Protocol,
		TLS:         cfg.TLS,
		Auth:        cfg.Auth,
		Settings:    cfg.Settings,
		ClientInfo:  cfg.ClientInfo,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		Compression: cfg.Compression,
	}
	if cfg.Dialer != nil {
		opts.DialContext = cfg.Dialer
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ch: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ch: ping: %w", err)
	}

	return &CH{conn: conn, cfg: cfg, tracer: cfg.Tracer}, nil
}

// Insert appends rows to table using PrepareBatch, one column tuple per row.
// Each chunk is retried on any driver error with exponential backoff, then
// bisected once attempts are exhausted, so rows ahead of a bad row are
// still written; the first row that cannot be inserted fails the call
func (c *CH) Insert(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	for _, b := range chunkBounds(len(rows), c.cfg.InsertChunk) {
		if err := c.insertRetrying(ctx, table, rows[b[0]:b[1]]); err != nil {
			return err
		}
	}
	return nil
}

// chunkBounds splits [0,n) into chunk-sized [start,end) pairs. A non-positive
// or oversized chunk collapses to a single range covering all of n
func chunkBounds(n, chunk int) [][2]int {
	if n <= 0 {
		return nil
	}
	if chunk <= 0 || chunk > n {
		chunk = n
	}
	bounds := make([][2]int, 0, (n+chunk-1)/chunk)
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}

func (c *CH) insertRetrying(ctx context.Context, table string, rows [][]any) error {
	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	base := c.cfg.RetryBase
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	var lastErr error
	d := base
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.insertOnce(ctx, table, rows); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			d *= 2
		}
	}

	if len(rows) == 1 {
		return fmt.Errorf("ch: insert into %s: %w", table, lastErr)
	}

	// Bisect: isolate the bad row(s) instead of failing the whole batch
	mid := len(rows) / 2
	if err := c.insertRetrying(ctx, table, rows[:mid]); err != nil {
		return err
	}
	return c.insertRetrying(ctx, table, rows[mid:])
}

func (c *CH) insertOnce(ctx context.Context, table string, rows [][]any) error {
	start := time.Now()
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", table))
	if err != nil {
		c.trace(ctx, "INSERT INTO "+table, nil, start, err)
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			c.trace(ctx, "INSERT INTO "+table, nil, start, err)
			return err
		}
	}
	err = batch.Send()
	c.trace(ctx, "INSERT INTO "+table, len(rows), start, err)
	return err
}

// Exec runs a statement that returns no result set (DDL, mutations such as
// ALTER TABLE ... DELETE)
func (c *CH) Exec(ctx context.Context, sql string, args ...any) error {
	start := time.Now()
	err := c.conn.Exec(ctx, sql, args...)
	c.trace(ctx, sql, args, start, err)
	return err
}

// Query runs a parameterized query and returns the native driver's Rows
func (c *CH) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rows, err := c.conn.Query(ctx, sql, args...)
	c.trace(ctx, sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Close releases the underlying connection
func (c *CH) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *CH) trace(ctx context.Context, sql string, args any, start time.Time, err error) {
	if c.tracer == nil {
		return
	}
	elapsed := time.Since(start)
	c.tracer.OnQuery(ctx, QueryEvent{
		SQL:       sql,
		Args:      args,
		ElapsedUS: elapsed.Microseconds(),
		Err:       err,
		Slow:      elapsed > time.Second,
	})
}
