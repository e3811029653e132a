package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mentorgo/internal/analytics"
	"mentorgo/internal/api"
	"mentorgo/internal/auth"
	"mentorgo/internal/config"
	"mentorgo/internal/logger"
	"mentorgo/internal/nlp"
	"mentorgo/internal/redis"
	"mentorgo/internal/service/ai"
	"mentorgo/internal/service/assistant"
	"mentorgo/internal/storage"
)

const loginThrottlePrefix = "mentorgo_login"

func main() {
	var cfgPath string
	rootCmd := &cobra.Command{
		Use:   "mentorgo",
		Short: "Conversational mentor backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.json (defaults to $"+config.EnvConfigPath+")")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cfgPath)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func migrate(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.BasicConfig.Store != "sql" {
		return fmt.Errorf("store %q has no schema", cfg.BasicConfig.Store)
	}
	db, err := storage.Open(cfg.BasicConfig.DBType, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.BasicConfig.DBType); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	fmt.Printf("migrated %s database\n", cfg.BasicConfig.DBType)
	return nil
}

func serve(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.BasicConfig.Debug, cfg.BasicConfig.LogFile)
	defer logger.Sync(log)

	store, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer cache.Close()
	}

	completer, err := ai.NewCompleter(ctx, cfg, log)
	if err != nil {
		// The service still answers through its fallback templates.
		log.Warn("llm_unavailable", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
		completer = nil
	}
	intents := nlp.NewIntentClassifier(ai.LabelModel(completer), log)
	composer := ai.NewResponseComposer(nlp.NewAnalyzer(intents), completer, log)

	assistantService := assistant.NewService(store, assistant.Options{
		Composer:     composer,
		Summaries:    ai.NewSummaryAnalyzer(completer, log),
		HistoryLimit: cfg.BasicConfig.HistoryLimit,
		Logger:       log,
	})
	authService := auth.NewService(store, cache, time.Duration(cfg.BasicConfig.TokenTTLHours)*time.Hour)

	rateLimiter, err := api.NewRateLimiter(cfg.BasicConfig.RateLimit, cache)
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}
	throttleStore, err := cache.LimiterStore(loginThrottlePrefix)
	if err != nil {
		return fmt.Errorf("create login throttle store: %w", err)
	}
	handlers := api.NewHandler(assistantService, authService, analytics.NewAggregator(store), api.Options{
		Throttle: auth.NewLoginThrottle(
			throttleStore,
			cfg.BasicConfig.LoginMaxAttempts,
			time.Duration(cfg.BasicConfig.LoginLockoutMinutes)*time.Minute,
		),
		RateLimiter: rateLimiter,
		Logger:      log,
		EnableHSTS:  cfg.BasicConfig.EnableHSTS,
		Features: map[string]bool{
			"database": cfg.BasicConfig.Store == "sql",
			"redis":    cache != nil,
			"llm":      completer != nil,
		},
		Ping: pinger(store, cache),
	})

	if !cfg.BasicConfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handlers.Use(router)
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting_server",
			zap.String("address", cfg.BasicConfig.ServerAddress),
			zap.String("store", cfg.BasicConfig.Store),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.Bool("redis_enabled", cache != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting_down_server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// pinger checks the sql database and redis, whichever are in use.
func pinger(store storage.Store, cache *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if sqlStore, ok := store.(interface{ DB() *sql.DB }); ok {
			if err := sqlStore.DB().PingContext(ctx); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}
		}
		if raw := cache.Raw(); raw != nil {
			if err := raw.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
		}
		return nil
	}
}
