package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/drewdunne/docshub/internal/handler"
	"github.com/drewdunne/docshub/internal/logging"
	"github.com/drewdunne/docshub/internal/registry"
	"github.com/drewdunne/docshub/internal/repocache"
	"github.com/drewdunne/docshub/internal/server"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "0.1.0"

const (
	logCleanupInterval = 24 * time.Hour
	warmTimeout        = 10 * time.Minute
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "docshub: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("docshub v%s\n", version)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: docshub <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the documentation server")
	fmt.Println("  version  Print version information")
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "Path to config file")
	envFile := fs.String("env-file", "", "Path to .env file (optional)")
	warm := fs.Bool("warm", true, "Clone remote repos in the background at startup")
	fs.Parse(args)

	// Load .env file if specified or exists
	var envErr error
	if *envFile != "" {
		envErr = godotenv.Load(*envFile)
	} else {
		godotenv.Load(".env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	if envErr != nil {
		logger.Warn("could not load env file", zap.String("path", *envFile), zap.Error(envErr))
	}

	if cfg.Logging.Dir != "" {
		scheduler := logging.NewCleanupScheduler(
			logging.NewCleaner(cfg.Logging.Dir, cfg.Logging.RetentionDays),
			logCleanupInterval,
			logger,
		)
		scheduler.Start()
		defer scheduler.Stop()
	}

	repos := repocache.New(cfg.CacheDir, logger)
	api := handler.New(cfg, registry.NewRegistry(logger), repos, logger)
	srv := server.New(cfg, api, logger)

	if *warm {
		go func() {
			ctx, cancel := context.WithTimeout(srv.Context(), warmTimeout)
			defer cancel()
			if err := repos.SyncAll(ctx, cfg.Repos); err != nil {
				logger.Warn("initial repo sync incomplete", zap.Error(err))
			}
		}()
	}

	logger.Info("starting docshub",
		zap.String("version", version),
		zap.String("addr", cfg.Addr()),
		zap.Int("repos", len(cfg.Repos)))
	return srv.Run()
}
