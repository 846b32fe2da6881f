package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/questforge/questforge/internal/api"
	"github.com/questforge/questforge/internal/app/engagement"
	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/health"
	"github.com/questforge/questforge/internal/infra/aigen"
	_ "github.com/questforge/questforge/internal/infra/metrics" // Register Prometheus metrics
	"github.com/questforge/questforge/internal/infra/sqlite"
)

// Daemon is the core questforge runtime. It wires together all services.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Catalog *engagement.Catalog
	Server  *api.Server
	Health  *health.Checker

	Processor     *engagement.Processor
	Quests        *engagement.QuestService
	Boss          *engagement.BossService
	Insights      *engagement.InsightService
	Notifications *engagement.NotificationService
	Housekeeping  *Housekeeping

	logFile io.Closer
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logFile, err := setupLogging(cfg.Logging)
	if err != nil {
		return nil, err
	}

	// Open SQLite
	dataDir := cfg.DataDir()
	db, err := sqlite.Open(dataDir)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Quest text service: Ollama behind an LRU cache, or disabled.
	var gen domain.TextGenerator = aigen.Disabled{}
	var prober health.Prober
	aiTimeout := parseDuration(cfg.AI.Timeout, 20*time.Second)
	if cfg.AI.Enabled {
		ollama := aigen.NewOllamaGenerator(aigen.Config{
			BaseURL:     cfg.AI.BaseURL,
			Model:       cfg.AI.Model,
			Timeout:     aiTimeout,
			Temperature: cfg.AI.Temperature,
		})
		prober = ollama
		gen = ollama
		if cfg.AI.CacheSize > 0 {
			gen = aigen.NewCachedGenerator(ollama, cfg.AI.CacheSize, parseDuration(cfg.AI.CacheTTL, time.Hour))
		}
		log.Printf("[daemon] ai quests enabled (model=%s, base=%s)", cfg.AI.Model, cfg.AI.BaseURL)
	}

	opts := []engagement.Option{
		engagement.WithRetryPolicy(cfg.RetryPolicy()),
		engagement.WithNotificationPolicy(cfg.NotificationPolicy()),
		engagement.WithAITimeout(aiTimeout),
	}
	catalog := engagement.DefaultCatalog()

	d := &Daemon{
		Config:        cfg,
		DB:            db,
		Catalog:       catalog,
		Processor:     engagement.NewProcessor(db, catalog, opts...),
		Quests:        engagement.NewQuestService(db, gen, catalog, opts...),
		Boss:          engagement.NewBossService(db, catalog, opts...),
		Insights:      engagement.NewInsightService(db, catalog, opts...),
		Notifications: engagement.NewNotificationService(db, opts...),
		logFile:       logFile,
	}

	// Health checker
	d.Health = health.NewChecker(db, dataDir, prober, parseDuration(cfg.API.HealthInterval, time.Minute))

	// Housekeeping cron
	if cfg.Housekeeping.Enabled {
		hk, err := NewHousekeeping(db, cfg.Housekeeping.Schedule, parseDuration(cfg.Housekeeping.Retention, 30*24*time.Hour))
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Housekeeping = hk
	}

	// Initialize API server
	srv := api.NewServer(api.Services{
		Processor:     d.Processor,
		Quests:        d.Quests,
		Boss:          d.Boss,
		Insights:      d.Insights,
		Notifications: d.Notifications,
	})
	srv.SetHealthChecker(d.Health)
	srv.SetRequestTimeout(parseDuration(cfg.API.RequestTimeout, 30*time.Second))
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}
	if cfg.API.CORS {
		srv.EnableCORS()
	}
	d.Server = srv

	return d, nil
}

// Serve starts the HTTP server and background jobs and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	d.cancel = cancel

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Health checker (always runs)
	g.Go(func() error {
		d.Health.Run(ctx)
		return nil
	})

	if d.Housekeeping != nil {
		g.Go(func() error { return d.Housekeeping.Run(ctx) })
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		fmt.Printf("questforge serving on http://%s\n", addr)
		if d.Config.API.Metrics {
			fmt.Printf("  Metrics: http://%s/metrics\n", addr)
		}
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := g.Wait()
	log.Printf("[daemon] stopped")
	return err
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
		log.SetOutput(os.Stderr)
	}
}

// setupLogging applies the logging section. With a file configured, log
// output goes to both stderr and the file. Debug adds source locations.
func setupLogging(cfg LoggingConfig) (io.Closer, error) {
	flags := log.LstdFlags
	if cfg.Level == "debug" {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)

	if cfg.File == "" {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}
