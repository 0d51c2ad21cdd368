package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"blockwiki/api/internal/app"
	"blockwiki/api/internal/config"
	"blockwiki/api/internal/editlock"
	"blockwiki/api/internal/gitrepo"
	"blockwiki/api/internal/logging"
	"blockwiki/api/internal/media"
	"blockwiki/api/internal/search"
	"blockwiki/api/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:          "blockwiki-api",
	Short:        "Block document editing API",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		return serve(cfg, log)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, db *sql.DB, cfg config.Config, log zerolog.Logger) error {
			applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
			for _, v := range applied {
				log.Info().Str("version", v).Msg("migration applied")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert applied migrations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		return withDatabase(func(ctx context.Context, db *sql.DB, cfg config.Config, log zerolog.Logger) error {
			reverted, err := store.RollbackMigrations(ctx, db, cfg.MigrationsDir, steps)
			for _, v := range reverted {
				log.Info().Str("version", v).Msg("migration reverted")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", len(reverted))
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (default $"+config.EnvConfigPath+")")

	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to revert; 0 reverts all")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, log, nil
}

func withDatabase(fn func(context.Context, *sql.DB, config.Config, zerolog.Logger) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("database_url is not configured")
	}
	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db, cfg, log)
}

func serve(cfg config.Config, log zerolog.Logger) error {
	ctx := context.Background()
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	var (
		pages    app.PageStore
		fallback search.Searcher
		pg       *search.PgFTS
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		closers = append(closers, db)
		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		log.Info().Strs("applied", applied).Msg("database ready")
		pages = store.NewPostgresStore(db)
		pg = search.NewPgFTS(db)
		fallback = pg
	} else {
		log.Warn().Msg("no database configured, pages are kept in memory")
		pages = store.NewMemoryStore()
		fallback = search.NewMemoryIndex()
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.Search.MeiliURL) != "" {
		meili = search.NewMeili(cfg.Search.MeiliURL, cfg.Search.MeiliMasterKey, log)
	}
	searchService := search.NewService(meili, fallback, log)
	defer searchService.Close()

	lock, err := lockOptions(cfg, log, &closers)
	if err != nil {
		return err
	}

	mediaSvc, err := newMediaService(ctx, cfg, pages, log)
	if err != nil {
		return err
	}

	service := app.New(app.Options{
		Store:   pages,
		History: gitrepo.New(cfg.ReposDir),
		Search:  searchService,
		Media:   mediaSvc,
		Lock:    lock,
		Logger:  log,
	})
	if err := service.Bootstrap(ctx); err != nil {
		log.Warn().Err(err).Msg("bootstrap failed, will retry on next restart")
	}
	if pg != nil {
		go searchService.ReindexAllFromPG(ctx)
	} else if err := service.Reindex(ctx); err != nil {
		log.Warn().Err(err).Msg("reindex failed")
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("lock_backend", cfg.Lock.Backend).Msg("blockwiki API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		service.Close(context.Background())
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	service.Close(shutdownCtx)
	log.Info().Msg("stopped")
	return nil
}

func lockOptions(cfg config.Config, log zerolog.Logger, closers *[]io.Closer) (app.LockOptions, error) {
	opts := app.LockOptions{TTL: cfg.Lock.TTL, Heartbeat: cfg.Lock.Heartbeat}
	switch cfg.Lock.Backend {
	case "redis":
		client, err := editlock.DialRedis(cfg.Lock.RedisURL)
		if err != nil {
			return opts, fmt.Errorf("redis connection failed: %w", err)
		}
		*closers = append(*closers, client)
		opts.Storage = editlock.NewRedisStorage(client, cfg.Lock.Retention)
		opts.Broadcaster = editlock.NewRedisBroadcaster(client, log)
	case "file":
		opts.Storage = editlock.NewFileStorage(cfg.Lock.FilePath)
	default:
		opts.Storage = editlock.NewMemoryStorage()
	}
	return opts, nil
}

func newMediaService(ctx context.Context, cfg config.Config, catalog media.Catalog, log zerolog.Logger) (*media.Service, error) {
	if strings.TrimSpace(cfg.Media.Endpoint) == "" {
		log.Warn().Msg("no media endpoint configured, uploads are kept in memory")
		return media.NewService(media.NewMemoryObjects(cfg.PublicURL), catalog, cfg.Media.MaxBytes), nil
	}
	objects, err := media.NewMinioStore(ctx, media.MinioConfig{
		Endpoint:   cfg.Media.Endpoint,
		AccessKey:  cfg.Media.AccessKey,
		SecretKey:  cfg.Media.SecretKey,
		Bucket:     cfg.Media.Bucket,
		Region:     cfg.Media.Region,
		UseSSL:     cfg.Media.UseSSL,
		PublicURL:  cfg.Media.PublicURL,
		APIBaseURL: cfg.PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("media storage failed: %w", err)
	}
	return media.NewService(objects, catalog, cfg.Media.MaxBytes), nil
}
