// Package main provides the skybridge binary, which bridges a world server
// session and a chat platform session.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/bridge"
	"github.com/cory-johannsen/skybridge/internal/chat/discord"
	"github.com/cory-johannsen/skybridge/internal/config"
	"github.com/cory-johannsen/skybridge/internal/health"
	"github.com/cory-johannsen/skybridge/internal/observability"
	"github.com/cory-johannsen/skybridge/internal/server"
	"github.com/cory-johannsen/skybridge/internal/world/gateway"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/skybridge.yaml", "path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: no .env file loaded: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting skybridge",
		zap.String("world", cfg.World.Addr()),
		zap.String("username", cfg.World.Username),
		zap.String("gateway", cfg.World.GatewayURL),
	)

	var observer bridge.Observer = bridge.NopObserver{}
	var reporter *health.Reporter
	if cfg.Health.Enabled() {
		reporter = health.NewReporter(logger.Named("health"))
		if err := reporter.Listen(cfg.Health.Addr()); err != nil {
			logger.Fatal("starting health server", zap.Error(err))
		}
		observer = reporter
	}

	b := bridge.New(
		cfg,
		gateway.NewDialer(cfg.World.GatewayURL, logger.Named("world")),
		discord.NewConnector(cfg.Chat.Token, logger.Named("chat")),
		bridge.RealClock{},
		observer,
		logger.Named("bridge"),
	)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("bridge", server.ServiceFunc(b.Run))
	if reporter != nil {
		lifecycle.Add("health", &server.StartStop{StartFn: reporter.Start, StopFn: reporter.Stop})
	}

	logger.Info("skybridge initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("skybridge stopped with error", zap.Error(err))
	}
}
