// ABOUTME: Orchestrator daemon entry point.
// ABOUTME: Wires the store, stages, executor client, relay poller, driver, and HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autosci/orchestrator/api"
	"github.com/autosci/orchestrator/executor"
	"github.com/autosci/orchestrator/relay"
	"github.com/autosci/orchestrator/stages"
	"github.com/autosci/orchestrator/workflow"
)

func main() {
	os.Exit(run())
}

func run() int {
	loadDotEnv(".env")

	var (
		configPath = flag.String("config", "", "path to YAML config file")
		listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := api.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	return serve(cfg)
}

func serve(cfg api.Config) int {
	var store workflow.Store
	if cfg.DatabasePath != "" {
		sq, err := workflow.OpenSqlite(cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer sq.Close()
		store = sq
		log.Printf("component=main action=store kind=sqlite path=%s", cfg.DatabasePath)
	} else {
		store = workflow.NewMemoryStore()
		log.Printf("component=main action=store kind=memory")
	}

	var stageOpts []stages.Option
	if cfg.Model != "" {
		stageOpts = append(stageOpts, stages.WithModel(cfg.Model))
	}
	if cfg.ModelBaseURL != "" {
		stageOpts = append(stageOpts, stages.WithBaseURL(cfg.ModelBaseURL))
	}
	stageSet := stages.New(os.Getenv("OPENAI_API_KEY"), stageOpts...)

	exec := executor.New(cfg.ExecutorURL)

	driverCfg := workflow.DriverConfig{
		MaxDiscoveryAttempts: cfg.MaxDiscoveryAttempts,
		MaxHealAttempts:      cfg.MaxHealAttempts,
		HealCooldown:         time.Duration(cfg.HealCooldown),
		RelayWait:            time.Duration(cfg.RelayWait),
	}
	if cfg.RelayURL != "" {
		driverCfg.Relay = relay.New(cfg.RelayURL)
		log.Printf("component=main action=relay url=%s", cfg.RelayURL)
	}

	driver := workflow.NewDriver(store, stageSet, exec, driverCfg)
	defer driver.Close()

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.NewServer(driver),
	}

	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	log.Printf("component=main action=listen addr=%s executor=%s", cfg.Listen, cfg.ExecutorURL)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
