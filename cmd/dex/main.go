// Command dex is the indexing pipeline's single entry point. With no
// flags it boots the Session Orchestrator (spec.md §4.7). The hidden
// -worker-id flag re-execs the same binary into worker mode (spec.md
// §2.4/§5: workers are OS processes, not goroutines).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dex/internal/core/mqueue"
	"dex/internal/core/searchsink"
	"dex/internal/platform/config"
	"dex/internal/platform/logger"
	"dex/internal/platform/store"
	catalogrepo "dex/internal/services/catalog/repo"
	"dex/internal/services/indexer"
	"dex/internal/services/indexer/guardrails"
	"dex/internal/services/orchestrator"
	"dex/internal/services/worker"
)

func main() {
	workerID := flag.Int("worker-id", 0, "internal: run as worker N instead of the orchestrator")
	flag.Parse()

	l := logger.Get()
	root := config.New()

	st := openStore(root, l)
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	dexCfg := root.Prefix("DEX_")
	mqCfg := root.Prefix("SERVICE_MQ_")
	esCfg := root.Prefix("SERVICE_ES_")

	queueName := mqCfg.MayString("QUEUE", "index_queue")
	q, err := mqueue.Open(mqCfg.MustString("URL"), queueName)
	if err != nil {
		l.Panic().Err(err).Msg("mqueue.Open failed")
	}
	defer q.Close()

	sink, err := searchsink.New(
		esCfg.MayCSV("ADDRESSES", []string{"http://localhost:9200"}),
		esCfg.MayString("USERNAME", ""),
		esCfg.MayString("PASSWORD", ""),
		esCfg.MayString("INDEX", "repositories"),
	)
	if err != nil {
		l.Panic().Err(err).Msg("searchsink.New failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *workerID > 0 {
		runWorker(ctx, *workerID, dexCfg, st, q, sink, l)
		return
	}

	broker := mqueue.NewBroker(
		mqCfg.MustString("MGMT_URL"),
		"/",
		queueName,
		mqCfg.MustString("MGMT_USER"),
		mqCfg.MustString("MGMT_PASS"),
	)

	cfg := orchestratorConfig(dexCfg)
	o := orchestrator.New(cfg, st.PG, catalogrepo.NewPG(), q, broker, sink)
	if err := o.Run(ctx); err != nil {
		l.Fatal().Err(err).Msg("orchestrator run failed")
	}
}

func runWorker(ctx context.Context, id int, dexCfg config.Conf, st *store.Store, q *mqueue.Queue, sink *searchsink.Sink, l *logger.Logger) {
	ix := &indexer.Indexer{
		WorkDir:    dexCfg.MayString("WORKDIR", "/tmp/dex-workdir"),
		WorkerID:   id,
		ClocPath:   dexCfg.MayString("CLOC_PATH", "cloc"),
		Resolution: dexCfg.MayDuration("SECTOR_RESOLUTION_SECONDS", 604800*time.Second),
		Timeouts:   guardrails.Timeouts{},
		DB:         st.PG,
		Catalog:    catalogrepo.NewPG(),
		Metrics:    catalogrepo.NewCH(st.CH),
		Sink:       sink,
	}
	w := worker.New(id, q, ix)
	if err := w.Run(ctx); err != nil {
		l.Fatal().Err(err).Int("worker_id", id).Msg("worker run failed")
	}
}

func orchestratorConfig(dexCfg config.Conf) orchestrator.Config {
	return orchestrator.Config{
		Workers:             dexCfg.MayInt("WORKERS", 4),
		MaxRetries:          dexCfg.MayInt("MAX_RETRIES", 3),
		FeedSize:            dexCfg.MayInt("FEED_SIZE", 100),
		SmoothingConstant:   dexCfg.MayFloat64("SMOOTHING_CONSTANT", 0.3),
		MaxSleepSeconds:     dexCfg.MayFloat64("MAX_SLEEP_SECONDS", 30),
		WorkDir:             dexCfg.MayString("WORKDIR", "/tmp/dex-workdir"),
		WorkerCoolingPeriod: dexCfg.MayDuration("WORKER_COOLING_MS", 250*time.Millisecond),
		BootCoolingPeriod:   dexCfg.MayDuration("BOOT_COOLING_SECONDS", 2*time.Second),
		DebounceInterval:    dexCfg.MayDuration("DEBOUNCE_SECONDS", 10*time.Second),
	}
}

func openStore(root config.Conf, l *logger.Logger) *store.Store {
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	st, err := store.Open(context.Background(), store.Config{
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", true),
		},
		CH: store.CHConfig{
			Enabled:    true,
			URL:        chCfg.MustString("DBURL"),
			LogSQL:     chCfg.MayBool("LOG_SQL", true),
			ClientName: "dex",
			ClientTag:  "indexer",
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	return st
}
