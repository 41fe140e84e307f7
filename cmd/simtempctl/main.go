package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amaresga/simtemp/internal/config"
	"github.com/amaresga/simtemp/internal/errors"
	"github.com/amaresga/simtemp/internal/logger"
)

type command func(ctx context.Context, cfg *config.Config) error

var commands = map[string]command{
	"monitor":     runMonitor,
	"config":      runConfig,
	"set":         runSet,
	"stats":       runStats,
	"history":     runHistory,
	"test":        runTest,
	"flush":       runFlush,
	"reset-stats": runResetStats,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Str("file", cfg.ConfigFile()).Str("command", cfg.Command).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := dispatch(ctx, cfg); err != nil {
		if coded, ok := err.(errors.Error); ok {
			logger.ErrorWithCode(coded).Msg(cfg.Command + " failed")
		} else {
			logger.Error().Err(err).Msg(cfg.Command + " failed")
		}
		cancel()
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, cfg *config.Config) error {
	cmd, ok := commands[cfg.Command]
	if !ok {
		return errors.New().WithData(errors.ErrInvalidCommand, cfg.Command)
	}

	return cmd(ctx, cfg)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
