package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/stock-reservation/internal/config"
	invapp "github.com/dmehra2102/stock-reservation/internal/inventory/application"
	invdomain "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	invgrpc "github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/grpc"
	invmemory "github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/memory"
	invpg "github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation/internal/order/application"
	orderhttp "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/kafka"
	ordermemory "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/postgres"
	orderredis "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/redis"
	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation/pkg/idempotency"
	"github.com/dmehra2102/stock-reservation/pkg/keylock"
	"github.com/dmehra2102/stock-reservation/pkg/logging"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
	"github.com/dmehra2102/stock-reservation/pkg/shutdown"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

func main() {
	cfg, err := config.Load("order-service")
	if err != nil {
		logging.New().Error("config invalid", "err", err)
		os.Exit(1)
	}
	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OtelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	// Redis: order cache, idempotency keys, optional distributed lock
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	var (
		pool         *pgxpool.Pool
		ledger       invapp.StockLedger
		catalog      application.Catalog
		reservations invapp.ReservationStore
		orders       application.OrderRepository
		outboxStore  outbox.Store
		locker       invapp.Locker
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err = postgres.Connect(ctx, cfg.PGURL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Error("pg migrate failed", "err", err)
			os.Exit(1)
		}
		pgLedger := invpg.NewLedger(log, pool)
		// existing products keep their stock
		for _, seed := range cfg.SeedProducts {
			_, err := pgLedger.GetProduct(ctx, seed.ID)
			if err == nil {
				continue
			}
			if errors.Is(err, invdomain.ErrProductNotFound) {
				err = pgLedger.Upsert(ctx, product(seed))
			}
			if err != nil {
				log.Error("seed product failed", "product_id", seed.ID, "err", err)
				os.Exit(1)
			}
		}
		ledger, catalog = pgLedger, pgLedger
		reservations = invpg.NewReservationStore(log, pool)
		orders = orderpg.NewRepository(log, pool)
		outboxStore = orderpg.NewOutboxStore(log, pool)
	default:
		memCatalog := invmemory.NewCatalog()
		for _, seed := range cfg.SeedProducts {
			memCatalog.Put(product(seed))
		}
		ledger, catalog = memCatalog, memCatalog
		reservations = invmemory.NewReservationStore()
		memOutbox := outbox.NewMemoryStore()
		orders = ordermemory.NewRepository(memOutbox)
		outboxStore = memOutbox
	}

	switch cfg.LockBackend {
	case config.LockPostgres:
		locker = postgres.NewTxLocker(pool)
	case config.LockRedis:
		locker = keylock.NewRedis(rdb, 10*time.Second)
	default:
		locker = keylock.NewMemory()
	}

	manager := invapp.NewManager(log, ledger, reservations, locker, invapp.WithDefaultTTL(cfg.ProductHoldTTL))

	opts := []application.Option{application.WithCheckoutTTL(cfg.CheckoutHoldTTL)}
	var idem *idempotency.Store
	if pool != nil {
		opts = append(opts, application.WithTx(postgres.NewTxRunner(pool)))
	}
	if rdb != nil {
		opts = append(opts, application.WithCache(orderredis.NewCache(log, rdb, cfg.OrderCacheTTL)))
		idem = idempotency.NewStore(rdb, 24*time.Hour)
	}
	svc := application.NewService(log, orders, catalog, manager, locker, opts...)

	handlerOpts := []orderhttp.Option{orderhttp.WithHoldTTL(cfg.ProductHoldTTL)}
	if idem != nil {
		handlerOpts = append(handlerOpts, orderhttp.WithIdempotency(idem))
	}
	handler := orderhttp.NewHandler(log, svc, manager, handlerOpts...)

	// Kafka: outbox relay out, payment outcomes in
	if len(cfg.KafkaBrokers) > 0 {
		writer := orderkafka.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()
		var routes []outbox.DispatcherOption
		for eventType, topic := range cfg.OutboxRoutes {
			routes = append(routes, outbox.WithRoute(eventType, topic))
		}
		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic, routes...)
		relay := outbox.NewRelay(log, outboxStore, dispatch, "order-service-relay")
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()

		if idem != nil {
			consumer := orderkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.PaymentTopic, cfg.ConsumerGrp, svc, idem)
			go func() {
				if err := consumer.Run(ctx); err != nil {
					log.Error("consumer stopped", "err", err)
					cancel()
				}
			}()
		} else {
			log.Warn("payment consumer disabled: REDIS_ADDR is required for deduplication")
		}
	}

	if cfg.RunSweeper {
		sweeper := invapp.NewSweeper(log, reservations, manager, cfg.SweepInterval, cfg.SweepBatch)
		go func() {
			if err := sweeper.Run(ctx); err != nil {
				log.Error("sweeper stopped with error", "err", err)
			}
		}()
	}

	gs, err := invgrpc.Run(cfg.GRPCAddr, invgrpc.NewServer(log, cfg.ServiceName))
	if err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}
	if pool != nil {
		go gs.Watch(ctx, 5*time.Second, pool.Ping)
	}

	// HTTP server
	r := chi.NewRouter()
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.Store, "lock", cfg.LockBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	err = shutdown.Run(log, 10*time.Second,
		shutdown.Hook{Name: "http", Fn: srv.Shutdown},
		shutdown.Hook{Name: "grpc", Fn: func(context.Context) error { gs.GracefulStop(); return nil }},
		shutdown.Hook{Name: "tracing", Fn: tp.Shutdown},
	)
	log.Info("order-service shutdown complete", slog.Bool("clean", err == nil))
}

func product(seed config.ProductSeed) invdomain.Product {
	return invdomain.Product{ID: seed.ID, Name: seed.ID, Price: seed.Price, StockQuantity: seed.Stock}
}
