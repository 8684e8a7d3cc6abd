package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/claimdesk/claimdesk/internal/config"
	"github.com/claimdesk/claimdesk/internal/domain/claims"
	"github.com/claimdesk/claimdesk/internal/domain/collab"
	"github.com/claimdesk/claimdesk/internal/domain/documents"
	"github.com/claimdesk/claimdesk/internal/domain/notifications"
	"github.com/claimdesk/claimdesk/internal/domain/patients"
	"github.com/claimdesk/claimdesk/internal/domain/sideeffect"
	"github.com/claimdesk/claimdesk/internal/domain/users"
	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/blobstore"
	"github.com/claimdesk/claimdesk/internal/platform/db"
	"github.com/claimdesk/claimdesk/internal/platform/httpx"
	"github.com/claimdesk/claimdesk/internal/platform/middleware"
	"github.com/claimdesk/claimdesk/internal/platform/notification"
	"github.com/claimdesk/claimdesk/internal/platform/telemetry"
	"github.com/claimdesk/claimdesk/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "claimdesk-server",
		Short: "Hospital insurance claim collaboration API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(dir string, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrationFS(dir)))
}

func migrationFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Hour,
	}
}

func storageConfig(cfg *config.Config) blobstore.Config {
	return blobstore.Config{
		Driver:    cfg.StorageDriver,
		Bucket:    cfg.StorageBucket,
		Endpoint:  cfg.StorageEndpoint,
		Region:    cfg.StorageRegion,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
	}
}

// devFallbackActor is the caller assumed in development when a request
// carries no credentials.
func devFallbackActor(cfg *config.Config) (auth.Actor, error) {
	a := auth.Actor{Role: auth.RoleSuperAdmin, Name: "Developer"}
	if cfg.DevUserID == "" {
		return a, nil
	}
	id, err := uuid.Parse(cfg.DevUserID)
	if err != nil {
		return auth.Actor{}, fmt.Errorf("invalid DEV_USER_ID: %w", err)
	}
	a.ID = id
	return a, nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	tx := db.NewTxManager(pool)

	health := map[string]db.Pinger{}

	// Redis backs the presigned URL cache and the shared rate limiter.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		health["redis"] = db.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info().Msg("redis configured")
	}

	// Document storage
	store, err := blobstore.Open(ctx, storageConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open document storage")
	}
	if p, ok := store.(db.Pinger); ok {
		health["storage"] = p
	}
	if rdb != nil {
		store = blobstore.NewCachedStore(store, blobstore.NewRedisURLCache(rdb), logger)
	}
	logger.Info().Str("driver", cfg.StorageDriver).Str("bucket", cfg.StorageBucket).Msg("document storage ready")

	// Notification fan-out
	var publisher notification.Publisher = notification.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub, err := notification.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable, notifications stay in-app only")
		} else {
			defer amqpPub.Close()
			publisher = amqpPub
			health["rabbitmq"] = amqpPub
		}
	}

	metrics := telemetry.NewMetrics()
	effects := sideeffect.NewPipeline(tx, sideeffect.NewStorePG(pool), publisher, metrics, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpx.NewValidator()
	e.HTTPErrorHandler = apperror.Handler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.MaxUploadSize, "/api/v1/files"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	if cfg.MetricsEnabled {
		e.Use(metrics.Middleware())
		e.GET("/metrics", metrics.Handler())
	}

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.JWTSecret),
	}
	if cfg.IsDev() {
		fallback, err := devFallbackActor(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid dev auth config")
		}
		logger.Warn().Msg("development auth enabled, X-Dev-* headers are trusted")
		e.Use(auth.Skip(auth.DevAuthMiddleware(jwtCfg, fallback)))
	} else {
		e.Use(auth.Skip(auth.JWTMiddleware(jwtCfg)))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/ready", db.HealthHandler(pool, health))

	// API group
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	var limiter middleware.Limiter = middleware.NewMemoryLimiter(rateLimitCfg)
	if rdb != nil {
		limiter = middleware.NewRedisLimiter(rdb, rateLimitCfg, logger)
	}
	apiV1.Use(middleware.RateLimit(limiter, rateLimitCfg))

	perms := auth.NewPermissionSet(auth.DefaultRolePermissions())

	// Directory and registry
	userSvc := users.NewService(users.NewRepoPG(pool))
	users.NewHandler(userSvc).RegisterRoutes(apiV1, perms)
	patientSvc := patients.NewService(patients.NewRepoPG(pool))
	patients.NewHandler(patientSvc).RegisterRoutes(apiV1, perms)

	// Claims
	enhancementRepo := claims.NewEnhancementRepoPG(pool)
	queryRepo := claims.NewQueryRepoPG(pool)
	docRepo := documents.NewRepoPG(pool)
	claimSvc := claims.NewService(claims.Deps{
		Tx:           tx,
		Claims:       claims.NewClaimRepoPG(pool),
		Enhancements: enhancementRepo,
		Queries:      queryRepo,
		Documents:    docRepo,
		Patients:     patientSvc,
		Users:        userSvc,
		Effects:      effects,
		Presigner:    store,
		PresignTTL:   cfg.PresignTTL,
		Logger:       logger,
	})
	claims.NewHandler(claimSvc).RegisterRoutes(apiV1, perms)

	// Enhancements, queries and comments
	collabDeps := collab.Deps{
		Tx:           tx,
		Claims:       claimSvc,
		Enhancements: enhancementRepo,
		Queries:      queryRepo,
		Documents:    docRepo,
		Comments:     collab.NewCommentRepoPG(pool),
		Users:        userSvc,
		Effects:      effects,
		Presigner:    store,
		PresignTTL:   cfg.PresignTTL,
	}
	collab.NewHandler(
		collab.NewEnhancementService(collabDeps),
		collab.NewQueryService(collabDeps),
		collab.NewCommentService(collabDeps),
	).RegisterRoutes(apiV1, perms)

	// Notifications
	notifications.NewHandler(notifications.NewService(tx, notifications.NewRepoPG(pool))).RegisterRoutes(apiV1, perms)

	// File upload
	if cfg.EnableFileUpload {
		blobstore.NewHandler(store, 0, logger).RegisterRoutes(apiV1, perms)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
