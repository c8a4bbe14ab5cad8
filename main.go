package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"fleet_gateway/internal/bootstrap"
	"fleet_gateway/internal/config"
	"fleet_gateway/internal/httpapi"
	"fleet_gateway/internal/logger"
	"fleet_gateway/internal/metrics"
	"fleet_gateway/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting fleet verification gateway")

	metrics.Register(prometheus.DefaultRegisterer)

	app, err := bootstrap.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize gateway", zap.Error(err))
	}
	defer app.Close()

	// Подписываемся на уведомления о завершении проверки
	err = app.NATS.SubscribeToVerificationCompleted(context.Background(), func(event *types.VerificationEvent) {
		log.Info("Received verification completed notification",
			zap.String("verification_id", event.VerificationID),
			zap.String("service", string(event.Service)),
			zap.String("status", string(event.Status)))
	})
	if err != nil {
		log.Error("Failed to subscribe to verification completed", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           httpapi.NewRouter(app.Dispatcher, cfg.Server.CORSOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("Starting server", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
