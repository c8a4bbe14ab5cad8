package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fleet_gateway/internal/auth"
	"fleet_gateway/internal/config"
	"fleet_gateway/internal/gateway"
	"fleet_gateway/internal/messaging"
	"fleet_gateway/internal/repository"
	"fleet_gateway/internal/service"
	"fleet_gateway/internal/upstream"
)

// App holds the wired gateway shared by the HTTP server and the Lambda binary.
type App struct {
	Dispatcher *gateway.Dispatcher
	NATS       messaging.NATSClient

	db    *pgxpool.Pool
	redis *redis.Client
}

// New connects Postgres (required), Redis and NATS (both optional) and wires the gateway.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := pgxpool.New(ctx, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Connected to database")

	app := &App{db: db}

	if cfg.Database.Migrate {
		if err := RunMigrations(ctx, db, cfg.Database.MigrationsDir, log); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	var hot repository.HotCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// без Redis работаем только с Postgres
			log.Warn("Redis unavailable, hot cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rdb.Close()
		} else {
			log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
			app.redis = rdb
			hot = repository.NewHotCache(rdb, log)
		}
	}

	app.NATS = messaging.NewNoopClient(log)
	if cfg.NATS.URL != "" {
		natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, log)
		if err != nil {
			log.Warn("NATS unavailable, events disabled", zap.Error(err))
		} else {
			app.NATS = natsClient
		}
	}

	verificationRepo := repository.NewVerificationRepository(db, hot, cfg.Gateway.CacheTTL, log)
	vehicleRepo := repository.NewVehicleRepository(db, log)

	client := upstream.NewClient(cfg.Upstream, nil, log)
	if strings.TrimSpace(cfg.Upstream.APIKey) == "" {
		log.Warn("Upstream API key is not set, verification requests will fail with CONFIG_ERROR")
	}

	verificationService := service.NewVerificationService(verificationRepo, vehicleRepo, client, app.NATS, cfg.Gateway, log)
	vehicleService := service.NewVehicleService(vehicleRepo, app.NATS, log)

	app.Dispatcher = gateway.NewDispatcher(
		verificationService,
		vehicleService,
		auth.New(cfg.Gateway.ProxyToken, cfg.Auth.JWTSecret),
		cfg.Gateway.AlwaysReturn200,
		log,
	)
	return app, nil
}

func (a *App) Close() {
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}

// RunMigrations applies every *.sql file in dir in lexical order. Migrations are idempotent DDL.
func RunMigrations(ctx context.Context, db repository.DB, dir string, log *zap.Logger) error {
	log.Info("Running database migrations", zap.String("dir", dir))

	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		content, err := os.ReadFile(filepath.Join(dir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		log.Info("Migration completed", zap.String("file", filename))
	}

	log.Info("All migrations completed successfully", zap.Int("count", len(migrationFiles)))
	return nil
}
