package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/logging"
)

// seed loads the user and item catalog into the booking database without
// starting the API.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		seedPath   = flag.String("seed", "", "path to seed.yaml (defaults to seed.path from config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	path := *seedPath
	if path == "" {
		path = cfg.Seed.Path
	}
	if path == "" {
		return fmt.Errorf("no seed file: pass -seed or set seed.path")
	}
	seed, err := config.LoadSeed(path)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := db.SyncCatalog(ctx, seed.Users, seed.Items); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}

	fmt.Printf("done: users=%d items=%d\n", len(seed.Users), len(seed.Items))
	return nil
}
