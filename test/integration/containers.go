// Package integration starts throwaway backing services for tests built with
// the integration tag.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	pg "github.com/dmehra2102/stock-reservation/internal/platform/postgres"
)

type Service int

const (
	Postgres Service = 1 << iota
	Redis
	Kafka
)

type Env struct {
	PG    *postgres.PostgresContainer
	Redis *tcredis.RedisContainer
	Kafka *kafka.KafkaContainer

	PGURL     string
	RedisAddr string
	KAddr     []string
}

// Setup starts the requested containers. On error anything already started
// is terminated.
func Setup(ctx context.Context, services Service) (env *Env, err error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	env = &Env{}
	defer func() {
		if err != nil {
			env.Teardown(context.WithoutCancel(ctx))
			env = nil
		}
	}()

	if services&Postgres != 0 {
		env.PG, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("orderflow"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			return env, err
		}
		if env.PGURL, err = env.PG.ConnectionString(ctx, "sslmode=disable"); err != nil {
			return env, err
		}
	}

	if services&Redis != 0 {
		env.Redis, err = tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			return env, err
		}
		uri, err := env.Redis.ConnectionString(ctx)
		if err != nil {
			return env, err
		}
		opts, err := goredis.ParseURL(uri)
		if err != nil {
			return env, err
		}
		env.RedisAddr = opts.Addr
	}

	if services&Kafka != 0 {
		env.Kafka, err = kafka.Run(ctx,
			"confluentinc/confluent-local:7.5.0",
			kafka.WithClusterID("stock-reservation-it"),
		)
		if err != nil {
			return env, err
		}
		if env.KAddr, err = env.Kafka.Brokers(ctx); err != nil {
			return env, err
		}
	}
	return env, nil
}

func (e *Env) Teardown(ctx context.Context) {
	var started []testcontainers.Container
	if e.Kafka != nil {
		started = append(started, e.Kafka)
	}
	if e.Redis != nil {
		started = append(started, e.Redis)
	}
	if e.PG != nil {
		started = append(started, e.PG)
	}
	for _, c := range started {
		_ = c.Terminate(ctx)
	}
}

// Start is Setup for a single test: it skips under -short and registers
// Teardown as a cleanup.
func Start(t testing.TB, services Service) *Env {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	env, err := Setup(context.Background(), services)
	if err != nil {
		t.Fatalf("start containers: %v", err)
	}
	t.Cleanup(func() { env.Teardown(context.Background()) })
	return env
}

// Pool connects to the postgres container and applies the schema.
func (e *Env) Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := pg.Connect(ctx, e.PGURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pg.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// RedisClient returns a client for the redis container.
func (e *Env) RedisClient(t testing.TB) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{Addr: e.RedisAddr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
