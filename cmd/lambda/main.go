package main

import (
	"context"
	"fmt"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"fleet_gateway/internal/bootstrap"
	"fleet_gateway/internal/config"
	"fleet_gateway/internal/lambda"
	"fleet_gateway/internal/logger"
	"fleet_gateway/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Lambda собирает stdout как есть: всегда JSON
	log, err := logger.New(cfg.Log.Level, true)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// у Lambda нет /metrics: счётчики копятся в реестре экземпляра и наружу не отдаются
	metrics.Register(prometheus.DefaultRegisterer)

	app, err := bootstrap.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize gateway", zap.Error(err))
	}
	defer app.Close()

	awslambda.Start(lambda.NewHandler(app.Dispatcher, log).Handle)
}
