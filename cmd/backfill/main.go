// Command backfill computes image fingerprints for stored reports.
//
//	backfill [-config configs/config.yaml] [-migrate] [-workers 4]
//
// With -migrate the fingerprint column is added first when missing. The run
// is safe to repeat; unchanged images are not rewritten.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/WongZhiYun/Lost-Found/backfill"
	"github.com/WongZhiYun/Lost-Found/config"
	"github.com/WongZhiYun/Lost-Found/logger"
	"github.com/WongZhiYun/Lost-Found/storage"
	"github.com/WongZhiYun/Lost-Found/uploads"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: search ./configs and .)")
	migrate := flag.Bool("migrate", false, "Add the image_hash column if it does not exist")
	migrateOnly := flag.Bool("migrate-only", false, "Run the migration and exit")
	workers := flag.Int("workers", 0, "Images hashed concurrently (default: number of CPUs)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *migrate || *migrateOnly, *migrateOnly, *workers); err != nil {
		log.Error("Backfill failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, migrate, migrateOnly bool, workers int) error {
	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.URL, cfg.Database.Schema)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if migrate {
		if err := store.EnsureFingerprintColumn(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("Fingerprint column ready", zap.String("schema", cfg.Database.Schema))
		if migrateOnly {
			return nil
		}
	}

	files, err := uploads.Open(cfg.Uploads.Backend, cfg.Uploads.Root, uploads.S3Config{
		Bucket:          cfg.Uploads.S3.Bucket,
		Prefix:          cfg.Uploads.S3.Prefix,
		Endpoint:        cfg.Uploads.S3.Endpoint,
		Region:          cfg.Uploads.S3.Region,
		AccessKeyID:     cfg.Uploads.S3.AccessKeyID,
		SecretAccessKey: cfg.Uploads.S3.SecretAccessKey,
		MaxObjectBytes:  cfg.Search.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	job := backfill.NewJob(store, files, log, backfill.WithWorkers(workers))
	summary, err := job.Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
	return err
}
