// Command relayd runs the model relay: it wires the routing table, circuit
// breaker, health checker, and provider adapters together, verifies
// connectivity, and keeps the background health loop running until
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"modelrelay/internal/adapter/direct"
	"modelrelay/internal/adapter/gateway"
	"modelrelay/internal/adapter/store"
	"modelrelay/internal/infra/config"
	"modelrelay/internal/infra/logger"
	"modelrelay/internal/infra/tracer"
	"modelrelay/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relayd:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; environment variables win over it either way.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	gw := gateway.NewClient(cfg.Gateway, log)
	dp := direct.NewClient(cfg.Direct, log)

	routes, err := usecase.NewRoutingTable(cfg.Routing.Overrides)
	if err != nil {
		return fmt.Errorf("build routing table: %w", err)
	}

	breaker := usecase.NewBreaker("gateway-primary", cfg.Gateway.Breaker, log)
	health := usecase.NewHealthChecker(gw, cfg.Gateway.HealthInterval(), log)

	var usage usecase.UsageRecorder
	if cfg.Usage.Path != "" {
		ledger, err := store.NewUsageStore(cfg.Usage.Path)
		if err != nil {
			return fmt.Errorf("open usage store: %w", err)
		}
		defer ledger.Close()
		usage = ledger
	}

	orch := usecase.NewOrchestrator(usecase.OrchestratorParams{
		Gateway: gw,
		Direct:  dp,
		Routes:  routes,
		Breaker: breaker,
		Health:  health,
		Usage:   usage,
		Logger:  log,
		Config:  cfg.Gateway,
	})

	report, err := orch.TestConnection(ctx)
	if err != nil {
		log.Error("connectivity check failed", "error", err)
		return err
	}
	log.Info("connectivity check passed",
		"gateway_ok", report.GatewayOK, "providers", report.Providers)
	if !report.GatewayOK {
		log.Warn("starting without gateway", "error", report.GatewayError)
	}

	if cfg.Gateway.Enabled {
		health.Start(ctx)
		defer health.Stop()
	}

	log.Info("relayd running", "gateway_enabled", cfg.Gateway.Enabled)
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
