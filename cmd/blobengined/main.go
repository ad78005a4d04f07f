// Command blobengined runs the blob credit & subscription engine as a
// standalone service: the chi-routed method surface (spec.md §6), a
// gorilla/mux resolver callback server, and a prometheus /metrics
// endpoint, structured the way the teacher's cmd/xchainserver/main.go
// wires its server package together.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hoku-labs/blobengine/cmd/blobengined/server"
	"github.com/hoku-labs/blobengine/core"
	"github.com/hoku-labs/blobengine/internal/resolver"
	"github.com/hoku-labs/blobengine/pkg/config"
	"github.com/hoku-labs/blobengine/pkg/utils"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.WithError(err).Warn("no config file found, falling back to environment-only defaults")
		cfg = &config.Config{}
		cfg.Genesis.Capacity = utils.EnvOrDefaultUint64("BLOBENGINE_GENESIS_CAPACITY", 1<<40)
		cfg.Genesis.CreditDebitRate = utils.EnvOrDefaultUint64("BLOBENGINE_GENESIS_RATE", 1000)
		cfg.Server.ListenAddr = utils.EnvOrDefault("BLOBENGINE_LISTEN_ADDR", ":8080")
		cfg.Server.CallbackListenAddr = utils.EnvOrDefault("BLOBENGINE_CALLBACK_ADDR", ":8081")
		cfg.Server.MetricsAddr = utils.EnvOrDefault("BLOBENGINE_METRICS_ADDR", ":9090")
		cfg.Storage.SnapshotPath = utils.EnvOrDefault("BLOBENGINE_SNAPSHOT_PATH", "blobengine.snapshot")
		cfg.Resolver.PollIntervalSeconds = int64(utils.EnvOrDefaultUint64("BLOBENGINE_RESOLVER_POLL_SECONDS", 2))
		cfg.Epoch.TickSeconds = int64(utils.EnvOrDefaultUint64("BLOBENGINE_EPOCH_TICK_SECONDS", 30))
	}

	ledger, err := core.NewLedger(core.LedgerConfig{
		SnapshotPath:    cfg.Storage.SnapshotPath,
		Capacity:        cfg.Genesis.Capacity,
		CreditDebitRate: cfg.Genesis.CreditDebitRate,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize ledger")
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.WithError(err).Error("failed to flush final snapshot")
		}
	}()

	api := server.NewAPI(ledger)
	callback := server.NewCallbackServer(ledger)
	metrics := server.NewMetricsServer(ledger)

	go serveOrFatal(cfg.Server.ListenAddr, api, "method-surface API")
	go serveOrFatal(cfg.Server.CallbackListenAddr, callback, "resolver callback server")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		serveOrFatal(cfg.Server.MetricsAddr, mux, "prometheus metrics")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := &epochClock{}
	epochTick := time.Duration(cfg.Epoch.TickSeconds) * time.Second
	if epochTick <= 0 {
		epochTick = 30 * time.Second
	}
	go runEpochTicker(ctx, ledger, clock, epochTick)

	if cfg.Resolver.Addr == "" {
		// No out-of-band resolver process was configured: drive resolution
		// ourselves with an in-memory mock, so the added -> pending ->
		// resolved/failed cycle still runs end-to-end for local development.
		mock, err := resolver.NewMockClient(resolver.MockConfig{AlwaysResolve: true})
		if err != nil {
			log.WithError(err).Fatal("failed to construct mock resolver")
		}
		pollInterval := time.Duration(cfg.Resolver.PollIntervalSeconds) * time.Second
		if pollInterval <= 0 {
			pollInterval = 2 * time.Second
		}
		go runResolverWorker(ctx, ledger, mock, clock, pollInterval)
		log.WithField("interval", pollInterval).Info("running local mock resolver worker (no resolver.addr configured)")
	}

	waitForShutdown()
}

func serveOrFatal(addr string, handler http.Handler, name string) {
	log.WithFields(log.Fields{"addr": addr, "server": name}).Info("listening")
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.WithError(err).Fatalf("%s crashed", name)
	}
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
}
