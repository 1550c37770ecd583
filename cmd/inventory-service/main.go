// Command inventory-service runs the reservation expiry sweeper on its own,
// against the shared postgres store, for deployments where API replicas run
// with RUN_SWEEPER=false.
package main

import (
	"context"
	"os"
	"time"

	"github.com/dmehra2102/stock-reservation/internal/config"
	invapp "github.com/dmehra2102/stock-reservation/internal/inventory/application"
	invgrpc "github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/grpc"
	invpg "github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation/pkg/logging"
	"github.com/dmehra2102/stock-reservation/pkg/shutdown"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

func main() {
	cfg, err := config.Load("inventory-service")
	if err != nil {
		logging.New().Error("config invalid", "err", err)
		os.Exit(1)
	}
	log := logging.NewWithLevel(cfg.LogLevel)
	if cfg.Store != config.StorePostgres {
		log.Error("inventory-service needs STORE=postgres; an in-memory sweeper has nothing to sweep")
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OtelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	pool, err := postgres.Connect(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Error("pg migrate failed", "err", err)
		os.Exit(1)
	}

	store := invpg.NewReservationStore(log, pool)
	manager := invapp.NewManager(log, invpg.NewLedger(log, pool), store, postgres.NewTxLocker(pool))
	sweeper := invapp.NewSweeper(log, store, manager, cfg.SweepInterval, cfg.SweepBatch)

	gs, err := invgrpc.Run(cfg.GRPCAddr, invgrpc.NewServer(log, cfg.ServiceName))
	if err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}
	go gs.Watch(ctx, 5*time.Second, pool.Ping)

	log.Info("sweeper running", "interval", cfg.SweepInterval, "batch", cfg.SweepBatch)
	if err := sweeper.Run(ctx); err != nil {
		log.Error("sweeper stopped with error", "err", err)
	}
	err = shutdown.Run(log, 10*time.Second,
		shutdown.Hook{Name: "grpc", Fn: func(context.Context) error { gs.GracefulStop(); return nil }},
		shutdown.Hook{Name: "tracing", Fn: tp.Shutdown},
	)
	log.Info("inventory-service shutdown complete", "clean", err == nil)
}
