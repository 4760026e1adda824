package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tokenwarden/tokenwarden/internal/alerts"
	"github.com/tokenwarden/tokenwarden/internal/api"
	"github.com/tokenwarden/tokenwarden/internal/cleanup"
	"github.com/tokenwarden/tokenwarden/internal/config"
	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/expiry"
	"github.com/tokenwarden/tokenwarden/internal/logging"
	"github.com/tokenwarden/tokenwarden/internal/metrics"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/refresh"
	"github.com/tokenwarden/tokenwarden/internal/scanner"
	"github.com/tokenwarden/tokenwarden/internal/scheduler"
	"github.com/tokenwarden/tokenwarden/internal/store"
	"github.com/tokenwarden/tokenwarden/internal/telegram"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the TokenWarden server",
	Long: `Start the TokenWarden server in main mode.

This command starts the HTTP server that exposes the credential API and,
when enabled, the background scanner that disconnects dead integrations,
warns about expiring refresh tokens and refreshes access tokens.

Example:
  tokenwarden serve --config config.yaml --db ./data/tokenwarden.db

The server will start listening on the address configured in the config file.`,
	RunE: runServe,
}

var serveFlags struct {
	Host       string
	Port       int
	Timeout    time.Duration
	TLS        bool
	TLSCert    string
	TLSKey     string
	TLSVersion string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("SHUTDOWN_TIMEOUT", 30*time.Second), "Shutdown timeout")
	serveCmd.Flags().BoolVar(&serveFlags.TLS, "tls", false, "Enable TLS/HTTPS")
	serveCmd.Flags().StringVar(&serveFlags.TLSCert, "cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSKey, "key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSVersion, "tls-version", "1.3", "Minimum TLS version (1.2 or 1.3)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting TokenWarden server...")
		log.Printf("Config path: %s", globalFlags.Config)
		log.Printf("Database path: %s", globalFlags.DBPath)
	}

	// Load configuration
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Apply CLI flags to config
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.TLS {
		cfg.Server.TLS.Enabled = true
	}
	if serveFlags.TLSCert != "" {
		cfg.Server.TLS.CertFile = serveFlags.TLSCert
	}
	if serveFlags.TLSKey != "" {
		cfg.Server.TLS.KeyFile = serveFlags.TLSKey
	}
	if serveFlags.TLSVersion != "" {
		cfg.Server.TLS.MinVersion = serveFlags.TLSVersion
	}

	if cfg.Server.TLS.Enabled {
		if err := validateTLSConfig(cfg.Server.TLS); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	logger := logging.NewLogger(logging.WithService("tokenwarden"))

	codec, err := crypto.NewCodecFromHex(cfg.Encryption.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize credential codec: %w", err)
	}

	dbPath := cfg.Storage.Path
	if globalFlags.DBPath != "" {
		dbPath = globalFlags.DBPath
	}
	sqliteStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite store: %w", err)
	}
	defer func() {
		if err := sqliteStore.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	if globalFlags.Verbose {
		log.Printf("Database initialized at: %s (WAL mode enabled)", dbPath)
	}

	var auditStore logging.AuditStore
	if cfg.Audit.Enabled {
		auditPath := cfg.Audit.Path
		if auditPath == "" {
			auditPath = filepath.Join(filepath.Dir(dbPath), "audit.db")
		}
		sqliteAudit, err := logging.NewSQLiteAuditStoreWithRetention(auditPath, cfg.Audit.Retention)
		if err != nil {
			return fmt.Errorf("failed to create audit store: %w", err)
		}
		defer func() {
			if err := sqliteAudit.Close(); err != nil {
				log.Printf("Error closing audit store: %v", err)
			}
		}()
		auditStore = sqliteAudit
		if globalFlags.Verbose {
			log.Printf("Audit trail enabled at: %s (retention=%s)", auditPath, cfg.Audit.Retention)
		}
	}

	m := metrics.NewMetrics("tokenwarden")

	policy := scanner.Policy{
		AccessRefreshDays:     cfg.Scanner.AccessRefreshDays,
		RefreshDisconnectDays: cfg.Scanner.RefreshDisconnectDays,
		RefreshWarningDays:    cfg.Scanner.RefreshWarningDays,
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid scanner thresholds: %w", err)
	}
	sc := scanner.New(sqliteStore, codec, policy,
		scanner.WithWorkers(cfg.Scanner.Workers),
		scanner.WithLogger(logger))

	executor := refresh.New(sqliteStore, codec, buildRefreshPlatforms(cfg),
		refresh.WithTimeout(cfg.Refresh.Timeout),
		refresh.WithWorkers(cfg.Refresh.Workers),
		refresh.WithLogger(logger))

	// Telegram-backed alert service
	var alertSvc *alerts.Service
	if cfg.Telegram.Enabled && cfg.Alerts.Enabled {
		tgClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Printf("Telegram setup warning: %v", err)
		} else {
			alertSvc = alerts.NewService(alerts.Config{
				Enabled:            cfg.Alerts.Enabled,
				Debounce:           cfg.Alerts.Debounce,
				RateLimitPerMinute: cfg.Alerts.RateLimitPerMinute,
			}, tgClient, logger)
			alertSvc.Start()
			telegram.Notify(cfg.Telegram.BotToken, cfg.Telegram.ChatID, "🚀 TokenWarden started")
		}
	}

	// When refresh is disabled the pipeline only scans, warns and
	// disconnects; explicit API refreshes still work.
	pipelineExecutor := executor
	if !cfg.Refresh.Enabled {
		pipelineExecutor = nil
	}

	pipeline := scheduler.NewPipeline(scheduler.PipelineDeps{
		Scanner:        sc,
		Executor:       pipelineExecutor,
		Store:          sqliteStore,
		Alerts:         alertSvc,
		Metrics:        m,
		Logger:         logger,
		Audit:          auditStore,
		AutoDisconnect: cfg.Scanner.AutoDisconnect,
	})

	var janitor *cleanup.Janitor
	if cfg.Cleanup.Enabled {
		janitor = cleanup.NewJanitor(cleanup.Config{
			Interval:              cfg.Cleanup.Interval,
			DisconnectedRetention: cfg.Cleanup.DisconnectedRetention,
			VacuumEnabled:         cfg.Cleanup.VacuumEnabled,
			VacuumInterval:        cfg.Cleanup.VacuumInterval,
		}, sqliteStore.DB(), m, logger)
		if err := janitor.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start retention janitor: %w", err)
		}
		log.Printf("Retention janitor started (interval=%s retention=%s)", cfg.Cleanup.Interval, cfg.Cleanup.DisconnectedRetention)
	}

	var sched *scheduler.Scheduler
	if cfg.Scanner.Enabled {
		platforms, err := parsePlatforms(cfg.Scanner.Platforms)
		if err != nil {
			return fmt.Errorf("invalid scanner platforms: %w", err)
		}
		sched = scheduler.NewScheduler(pipeline, cfg.Scanner.Interval, platforms, logger)
		sched.Start()
		log.Printf("Background scanner started (interval=%s auto_disconnect=%v)", cfg.Scanner.Interval, cfg.Scanner.AutoDisconnect)
	}

	server := api.NewServer(cfg.Server, cfg.API, api.Deps{
		Store:      sqliteStore,
		Scanner:    sc,
		Pipeline:   pipeline,
		Executor:   executor,
		Classifier: expiry.NewClassifier(expiry.DefaultThresholds()),
		Codec:      codec,
		Metrics:    m,
		Logger:     logger,
		AuditStore: auditStore,
	})

	if err := loader.StartWatcher(); err != nil {
		log.Printf("Config watcher warning: %v", err)
	}
	defer loader.StopWatcher()

	setupGracefulShutdown(server, sched, alertSvc, janitor, serveFlags.Timeout)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if cfg.Server.TLS.Enabled {
		log.Printf("Starting TokenWarden HTTPS server on %s", addr)
		log.Printf("TLS cert: %s, key: %s, min_version: %s", cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, cfg.Server.TLS.MinVersion)
	} else {
		log.Printf("Starting TokenWarden HTTP server on %s", addr)
	}

	if err := server.Run(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// buildRefreshPlatforms converts the config's per-platform OAuth client
// settings into the executor's platform map.
func buildRefreshPlatforms(cfg *config.Config) map[models.Platform]refresh.PlatformConfig {
	platforms := make(map[models.Platform]refresh.PlatformConfig, len(cfg.Refresh.Platforms))
	for name, pc := range cfg.Refresh.Platforms {
		platforms[models.Platform(name)] = refresh.PlatformConfig{
			TokenURL: pc.TokenURL,
			ClientCredentials: refresh.ClientCredentials{
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
			},
		}
	}
	return platforms
}

func parsePlatforms(names []string) ([]models.Platform, error) {
	platforms := make([]models.Platform, 0, len(names))
	for _, name := range names {
		p := models.Platform(strings.TrimSpace(name))
		if !p.IsKnown() {
			return nil, fmt.Errorf("unknown platform: %s", name)
		}
		platforms = append(platforms, p)
	}
	return platforms, nil
}

// validateTLSConfig validates TLS configuration
func validateTLSConfig(tls config.TLSConfig) error {
	if tls.CertFile == "" {
		return fmt.Errorf("TLS certificate file is required when TLS is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("TLS key file is required when TLS is enabled")
	}

	if _, err := os.Stat(tls.CertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file does not exist: %s", tls.CertFile)
	}
	if _, err := os.Stat(tls.KeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file does not exist: %s", tls.KeyFile)
	}

	if tls.MinVersion != "" && tls.MinVersion != "1.2" && tls.MinVersion != "1.3" {
		return fmt.Errorf("TLS min_version must be either \"1.2\" or \"1.3\", got: %s", tls.MinVersion)
	}

	return nil
}

// setupGracefulShutdown handles graceful shutdown of all components
func setupGracefulShutdown(server *api.Server, sched *scheduler.Scheduler, alertSvc *alerts.Service, janitor *cleanup.Janitor, timeout time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if sched != nil {
			log.Println("Stopping background scanner...")
			sched.Stop()
		}

		if janitor != nil {
			if err := janitor.Stop(); err != nil {
				log.Printf("Error stopping retention janitor: %v", err)
			}
		}

		log.Println("Shutting down API server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}

		if alertSvc != nil {
			alertSvc.Stop()
		}

		log.Println("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
