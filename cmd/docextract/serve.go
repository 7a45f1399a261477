package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/docextract/internal/document"
)

func newServeCommand(cfg *rootConfig, parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(parent)
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbDriver       = fs.StringLong("db-driver", "bolt", "Document store: 'bolt' or 'postgres'")
		dbPath         = fs.StringLong("db", "docextract.db", "BoltDB file path")
		databaseURL    = fs.StringLong("database-url", "", "Postgres connection string for --db-driver=postgres")
		storagePath    = fs.StringLong("storage", "./documents", "Upload storage directory")
		storageBucket  = fs.StringLong("storage-bucket", "", "Store uploads in this bucket on --s3-endpoint instead of on disk")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		workers        = fs.IntLong("workers", 4, "Background workers; 0 parses uploads inline")
		queueSize      = fs.IntLong("queue-size", 256, "Pending job buffer")
		maxAttempts    = fs.IntLong("max-attempts", 3, "Attempts per document before it stays failed")
		backoff        = fs.DurationLong("backoff", 2*time.Second, "Base retry delay, multiplied by the attempt number")
		processTimeout = fs.DurationLong("process-timeout", 3*time.Minute, "Timeout for a single parse attempt")
	)

	return &ff.Command{
		Name:      "serve",
		Usage:     "docextract serve [FLAGS]",
		ShortHelp: "run the document HTTP API",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			logger := slog.Default()

			parser, release, err := newParser(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer release()

			logger.Info("Initializing database...", "driver", *dbDriver)
			var db document.DB
			switch *dbDriver {
			case "bolt":
				db, err = document.NewBoltDB(*dbPath)
			case "postgres":
				db, err = document.NewPostgresDB(ctx, document.PostgresConfig{
					DSN:         *databaseURL,
					MaxConns:    int32(max(*workers, 1) + 4),
					DialTimeout: 10 * time.Second,
				}, logger)
			default:
				err = fmt.Errorf("invalid db driver %q, want bolt or postgres", *dbDriver)
			}
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer db.Close()

			logger.Info("Initializing storage...")
			var store document.Storage
			if *storageBucket != "" {
				store, err = document.NewObjectStorage(ctx, document.ObjectStorageConfig{
					Endpoint:  *cfg.s3Endpoint,
					AccessKey: *cfg.s3AccessKey,
					SecretKey: *cfg.s3SecretKey,
					Bucket:    *storageBucket,
					UseSSL:    *cfg.s3SSL,
				})
			} else {
				store, err = document.NewLocalStorage(*storagePath)
			}
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}

			service := document.NewService(db, parser, store)
			if *workers > 0 {
				queue := document.NewQueue(service.HandleJob, logger,
					document.WithWorkers(*workers),
					document.WithQueueSize(*queueSize),
					document.WithMaxAttempts(*maxAttempts),
					document.WithBackoff(*backoff),
					document.WithProcessTimeout(*processTimeout),
				)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					queue.Shutdown(shutdownCtx)
				}()
				service.UseScheduler(queue)
			}

			server := document.NewServer(service, document.BasicAuth{
				Username: *authUser,
				Password: *authPass,
			})
			if *authUser != "" || *authPass != "" {
				logger.Info("Basic auth enabled", "user", *authUser)
			}
			return server.Start(ctx, fmt.Sprintf(":%d", *port))
		},
	}
}
