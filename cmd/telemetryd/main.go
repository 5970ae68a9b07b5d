package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/paddocklink/telemetry-bridge/internal/orchestrator"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := flag.String("config", "config.json", "path to the bridge's JSON config file")
	dataDir := flag.String("data-dir", "data", "directory holding the personal-best database and its migrations")
	flag.Parse()

	orch, err := orchestrator.New(*configPath, *dataDir, log.Logger)
	if err != nil {
		log.Error().Msgf("telemetryd: failed to start: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("telemetryd: shutting down")
		cancel()
	}()

	if err := orch.Run(ctx); err != nil {
		log.Error().Msgf("telemetryd: %v", err)
		os.Exit(1)
	}
}
