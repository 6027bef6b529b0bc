package store

import "time"

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG PGConfig
	CH CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// Guard/boot knobs. openPG does not read these: it pings up to 20 times
	// with a 3s timeout per attempt and a backoff capped at 2s
	ConnectRetries int
	PingTimeout    time.Duration
}

// CHConfig configures clickhouse connectivity
type CHConfig struct {
	Enabled bool
	URL     string
	LogSQL  bool

	// ClientInfo identification surfaced to ClickHouse's system.query_log
	ClientName string
	ClientTag  string

	// Batch insert tuning, consumed by ch.Config (see openers.go)
	InsertChunk int
	MaxRetries  int
	RetryBaseMs int
}
