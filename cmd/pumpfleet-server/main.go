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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prettyneat-io/pumpfleet/internal/config"
	"github.com/prettyneat-io/pumpfleet/internal/domain/activity"
	"github.com/prettyneat-io/pumpfleet/internal/domain/consumables"
	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/holidaypump"
	"github.com/prettyneat-io/pumpfleet/internal/domain/inventory"
	"github.com/prettyneat-io/pumpfleet/internal/domain/ledger"
	"github.com/prettyneat-io/pumpfleet/internal/domain/lifecycle"
	"github.com/prettyneat-io/pumpfleet/internal/domain/patient"
	"github.com/prettyneat-io/pumpfleet/internal/domain/training"
	"github.com/prettyneat-io/pumpfleet/internal/platform/auth"
	"github.com/prettyneat-io/pumpfleet/internal/platform/db"
	"github.com/prettyneat-io/pumpfleet/internal/platform/locker"
	"github.com/prettyneat-io/pumpfleet/internal/platform/logging"
	"github.com/prettyneat-io/pumpfleet/internal/platform/metrics"
	"github.com/prettyneat-io/pumpfleet/internal/platform/middleware"
	"github.com/prettyneat-io/pumpfleet/internal/platform/notification"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
	"github.com/prettyneat-io/pumpfleet/internal/platform/websocket"
	"github.com/prettyneat-io/pumpfleet/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pumpfleet-server",
		Short: "Medical pump lifecycle API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the replacement reminder sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationSource returns the embedded migrations unless dir overrides them.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
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

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationSource(dir))
			fmt.Printf("Running migrations on schema: %s\n", cfg.DBSchema)

			count, err := migrator.Up(ctx, cfg.DBSchema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationSource(dir))
			statuses, err := migrator.Status(ctx, cfg.DBSchema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", cfg.DBSchema)
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
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Replacement reminder jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Create reminders for pumps due for replacement, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			lk, closeLock := sweepLocker(ctx, cfg, logger)
			defer closeLock()
			a := buildApp(pool, cfg, logger, nil, lk, metrics.Noop{})

			created, err := a.engine.CheckReplacementAlerts(systemContext(ctx))
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Printf("Created %d replacement reminder(s).\n", created)
			return nil
		},
	})
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Dev:        cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
}

// systemContext marks background work so notes are authored by "system".
func systemContext(ctx context.Context) context.Context {
	return auth.WithUser(ctx, "system", "system", []string{auth.RoleAdmin})
}

// sweepLocker returns the Redis lease when REDIS_URL is set and reachable,
// otherwise a process-local one.
func sweepLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (locker.Locker, func()) {
	if cfg.RedisURL == "" {
		return locker.NewLocal(), func() {}
	}
	rdb, err := locker.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using process-local sweep lease")
		return locker.NewLocal(), func() {}
	}
	return locker.NewRedis(rdb), func() { rdb.Close() }
}

func mailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SMTPHost == "" {
		return notification.LogSender{Logger: logger}
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		UseTLS:   cfg.SMTPUseTLS,
		Timeout:  10 * time.Second,
	})
}

func apiRateLimit(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func publicRateLimit(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 5, IdleTTL: 10 * time.Minute}
	if cfg.PublicRPS > 0 {
		rl.RequestsPerSecond = cfg.PublicRPS
		rl.BurstSize = cfg.PublicBurst
	}
	return rl
}

// app holds the wired services and handlers.
type app struct {
	engine *lifecycle.Engine

	equipment   *equipment.Handler
	patients    *patient.Handler
	training    *training.Handler
	inventory   *inventory.Handler
	ledger      *ledger.Handler
	activity    *activity.Handler
	lifecycle   *lifecycle.Handler
	consumables *consumables.Handler
	holiday     *holidaypump.Handler
}

// buildApp wires repositories, services and the lifecycle engine. publisher
// may be nil when no live feed is running.
func buildApp(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger,
	publisher websocket.EventPublisher, lk locker.Locker, rec metrics.Recorder) *app {
	tx := db.NewTxRunner(pool)
	pumps := cfg.Pumps()

	equipmentSvc := equipment.NewService(equipment.NewProductRepoPG(pool), equipment.NewUnitRepoPG(pool), tx, pumps.AlertWindowDays)
	patientSvc := patient.NewService(patient.NewRepoPG(pool), tx, cfg.PhoneRegion)
	trainingSvc := training.NewService(training.NewRepoPG(pool))
	inventorySvc := inventory.NewService(inventory.NewLocationRepoPG(pool), inventory.NewMovementRepoPG(pool), equipmentSvc, tx)
	ledgerSvc := ledger.NewService(ledger.NewRepoPG(pool))
	activitySvc := activity.NewService(activity.NewNoteRepoPG(pool), activity.NewReminderRepoPG(pool), publisher, logger)

	engine := lifecycle.NewEngine(lifecycle.Deps{
		Tx:        tx,
		Units:     equipmentSvc,
		Patients:  patientSvc,
		Ledger:    ledgerSvc,
		Activity:  activitySvc,
		Inventory: inventorySvc,
		Locker:    lk,
		Metrics:   rec,
	}, pumps, logger)
	equipmentSvc.SetAssignmentRouter(engine)
	patientSvc.SetDeviceLinker(engine)

	consumablesSvc := consumables.NewService(consumables.NewRepoPG(pool), patientSvc, pumps)
	mailer := notification.NewMailer(mailSender(cfg, logger), notification.NewTemplateEngine())
	holidaySvc := holidaypump.NewService(holidaypump.NewRepoPG(pool), equipmentSvc, engine, activitySvc,
		mailer, tx, pumps.HelpdeskEmail, cfg.PhoneRegion, logger)

	return &app{
		engine:      engine,
		equipment:   equipment.NewHandler(equipmentSvc),
		patients:    patient.NewHandler(patientSvc),
		training:    training.NewHandler(trainingSvc),
		inventory:   inventory.NewHandler(inventorySvc),
		ledger:      ledger.NewHandler(ledgerSvc),
		activity:    activity.NewHandler(activitySvc),
		lifecycle:   lifecycle.NewHandler(engine),
		consumables: consumables.NewHandler(consumablesSvc),
		holiday:     holidaypump.NewHandler(holidaySvc),
	}
}

func (a *app) registerRoutes(api *echo.Group) {
	a.equipment.RegisterRoutes(api)
	a.patients.RegisterRoutes(api)
	a.training.RegisterRoutes(api)
	a.inventory.RegisterRoutes(api)
	a.ledger.RegisterRoutes(api)
	a.activity.RegisterRoutes(api)
	a.lifecycle.RegisterRoutes(api)
	a.consumables.RegisterRoutes(api)
	a.holiday.RegisterRoutes(api)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	hub := websocket.NewHub(logger)
	prom := metrics.NewPrometheus()
	lk, closeLock := sweepLocker(ctx, cfg, logger)
	defer closeLock()
	a := buildApp(pool, cfg, logger, hub, lk, prom)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New(cfg.PhoneRegion)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() && cfg.AuthIssuer == "" && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development auth enabled: every request acts as admin")
		e.Use(auth.DevAuthMiddleware())
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}
		if cfg.AuthSigningKey != "" {
			jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
		}
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(prom.Handler()))
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))
	a.holiday.RegisterPublicRoutes(e, middleware.RateLimit(publicRateLimit(cfg)))

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(apiRateLimit(cfg)))
	a.registerRoutes(api)

	go a.engine.RunSweeper(systemContext(ctx), cfg.SweepInterval)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
