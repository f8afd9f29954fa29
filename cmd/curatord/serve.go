package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/metacurate/curation-engine/internal/admission"
	"github.com/metacurate/curation-engine/internal/cache"
	"github.com/metacurate/curation-engine/internal/catalog"
	"github.com/metacurate/curation-engine/internal/config"
	"github.com/metacurate/curation-engine/internal/executor"
	"github.com/metacurate/curation-engine/internal/logging"
	"github.com/metacurate/curation-engine/internal/overrides"
	"github.com/metacurate/curation-engine/internal/server"
	"github.com/metacurate/curation-engine/internal/store"
)

var (
	servePort        int
	serveConfigPath  string
	serveBackend     string
	serveDataDir     string
	serveExecutorURL string
	serveRuleCatalog string
	serveLeaseTTL    int
	serveDebug       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the validation run and override endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a JSON config file")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "Persistence backend: postgres or filesystem")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Data directory for the filesystem backend")
	serveCmd.Flags().StringVar(&serveExecutorURL, "executor-url", "", "Base URL of the rule-engine runner")
	serveCmd.Flags().StringVar(&serveRuleCatalog, "rule-catalog", "", "Path to the rule catalog JSON file")
	serveCmd.Flags().IntVar(&serveLeaseTTL, "lease-ttl", 0, "Validation run lease TTL in seconds")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable verbose logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Config{
		Port:            servePort,
		Backend:         serveBackend,
		DataDir:         serveDataDir,
		ExecutorURL:     serveExecutorURL,
		RuleCatalog:     serveRuleCatalog,
		LeaseTTLSeconds: serveLeaseTTL,
		Debug:           serveDebug,
	}

	// Flags win over the config file, the config file over the environment.
	if serveConfigPath != "" {
		fileCfg, err := config.LoadConfig(serveConfigPath)
		if err != nil {
			return err
		}
		cfg = cfg.MergeWithDefaults(*fileCfg)
	}
	cfg.FromEnv()
	cfg = cfg.MergeWithDefaults(config.Config{
		Port:    8080,
		Backend: config.BackendFilesystem,
		DataDir: "data",
	})

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ExecutorURL == "" {
		return fmt.Errorf("executor URL is required (--executor-url or EXECUTOR_URL)")
	}
	if cfg.RuleCatalog == "" {
		return fmt.Errorf("rule catalog path is required (--rule-catalog or RULE_CATALOG)")
	}

	log, err := logging.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	ctx := context.Background()

	var (
		leases        cache.Cache
		reportStore   store.ReportStore
		overrideStore store.OverrideStore
	)
	switch cfg.Backend {
	case config.BackendPostgres:
		pg, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		leases = cache.NewPostgres(pg.Pool())
		reportStore = pg
		overrideStore = pg.Overrides()
		log.Infow("using postgres backend")
	case config.BackendFilesystem:
		fs := store.NewFilesystem(cfg.DataDir)
		leases = cache.NewMemory()
		reportStore = fs
		overrideStore = fs.Overrides()
		log.Infow("using filesystem backend", "data_dir", cfg.DataDir)
	}

	ruleCatalog := catalog.NewFile(cfg.RuleCatalog)
	if _, err := ruleCatalog.GetDefinitions(ctx); err != nil {
		return fmt.Errorf("failed to load rule catalog: %w", err)
	}

	runner := executor.NewHTTPClient(cfg.ExecutorURL)
	controller := admission.New(leases, runner, reportStore, overrideStore, ruleCatalog, log)
	overrideService := overrides.New(overrideStore, ruleCatalog, log)

	var jwtService *server.JWTService
	if os.Getenv("JWT_SECRET") != "" {
		jwtCfg, err := config.NewJWTConfig()
		if err != nil {
			return err
		}
		jwtService = server.NewJWTService(jwtCfg)
	} else {
		log.Warn("JWT_SECRET not set, mutating endpoints are unauthenticated")
	}

	leaseTTL := cfg.LeaseTTL()
	if leaseTTL == 0 {
		leaseTTL = admission.DefaultLeaseTTL
	}
	if leaseTTL < 30*time.Second {
		return fmt.Errorf("lease TTL %s is too short to outlive the freshness margin", leaseTTL)
	}

	srv := server.New(server.Config{
		Port:     cfg.Port,
		LeaseTTL: leaseTTL,
	}, controller, overrideService, jwtService, log)

	return srv.Start()
}
