package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verge-graph/verge/pkg/config"
	"github.com/verge-graph/verge/pkg/events"
	"github.com/verge-graph/verge/pkg/idgen"
	"github.com/verge-graph/verge/pkg/logging"
	"github.com/verge-graph/verge/pkg/metrics"
	"github.com/verge-graph/verge/pkg/persistence"
	"github.com/verge-graph/verge/pkg/propindex"
	"github.com/verge-graph/verge/pkg/txn"
)

func main() {
	configPath := flag.String("config", "", "Path to kernel config YAML")
	metricsAddr := flag.String("metrics-addr", ":9090", "Address for the /metrics endpoint")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	level := logging.ParseLevel(cfg.LogLevel)
	log := logging.NewJSONLogger(os.Stdout, level)
	log.Info("verge kernel starting",
		logging.Int("broker_stripes", cfg.Broker.Stripes),
		logging.String("log_level", level.String()),
	)

	registry := metrics.NewRegistry()
	bus := events.NewBusWithBuffer(cfg.Events.BufferSize)
	defer bus.Shutdown()

	ids := idgen.NewGenerator()
	manager := txn.NewManager(ids, log.With(logging.Component("txn")))

	dispatcher := persistence.NewDispatcher()
	var closeSource func()
	if cfg.Postgres.DSN != "" {
		source, err := persistence.NewPostgresSource(context.Background(), cfg.Postgres.SourceName, cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres source unavailable", logging.Error(err))
			os.Exit(1)
		}
		dispatcher.SetActiveSource(source)
		closeSource = source.Close
		log.Info("using postgres source", logging.Source(cfg.Postgres.SourceName))
	} else {
		source := persistence.NewMemorySource("memory")
		dispatcher.SetActiveSource(source)
		closeSource = func() {}
		log.Info("using in-memory source", logging.Source("memory"))
	}
	defer closeSource()

	broker := persistence.NewBroker(dispatcher, cfg.Broker.Stripes,
		log.With(logging.Component("broker")), registry)

	var store propindex.Store
	if cfg.Index.StorePath != "" {
		store = propindex.NewFileIndexStore(cfg.Index.StorePath)
		log.Info("index store attached", logging.Path(cfg.Index.StorePath))
	}
	index := propindex.NewRegistry(ids, store, bus,
		log.With(logging.Component("propindex")), registry)
	if _, err := index.Recover(context.Background()); err != nil {
		log.Error("index cache recovery failed", logging.Error(err))
		os.Exit(1)
	}

	// Skip the index part of the check when a durable store is attached,
	// so boots do not append throwaway records to it.
	checkIndex := cfg.Index.StorePath == ""
	if err := smokeTransaction(manager, broker, index, checkIndex, log); err != nil {
		log.Error("startup check failed", logging.Error(err))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:         *metricsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("metrics listener up", logging.String("addr", *metricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener failed", logging.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("metrics listener shutdown", logging.Error(err))
	}
}

// smokeTransaction exercises the kernel once at startup: acquire a
// connection inside a transaction, optionally create a property index,
// and commit.
func smokeTransaction(manager *txn.Manager, broker *persistence.Broker, index *propindex.Registry, checkIndex bool, log logging.Logger) error {
	ctx, tx, err := manager.Begin(context.Background())
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := broker.AcquireConnection(ctx); err != nil {
		manager.Rollback(ctx, tx)
		return fmt.Errorf("acquire: %w", err)
	}

	if checkIndex {
		created, err := index.Create(ctx, "startup_check")
		if err != nil {
			manager.Rollback(ctx, tx)
			return fmt.Errorf("index create: %w", err)
		}
		defer index.Remove(created.ID())
	}

	if err := manager.Commit(ctx, tx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Info("startup check passed", logging.TxID(tx.ID()))
	return nil
}
