package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tenantd/internal/cluster"
	"tenantd/internal/config"
	"tenantd/internal/orchestrator"
	"tenantd/internal/registry"
	pgregistry "tenantd/internal/registry/postgres"
	"tenantd/internal/release"
	"tenantd/internal/server"
	"tenantd/internal/status"
	"tenantd/pkg/logging"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

const shutdownGracePeriod = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tenant lifecycle API server",
	Long: `Starts the tenantd HTTP server.

On startup the server connects to the configured Kubernetes cluster,
resumes any tenants a previous process left mid-operation, and then
serves the tenant lifecycle API until interrupted.

Configuration:
  tenantd layers configuration from defaults, ~/.config/tenantd/config.yaml,
  ./.tenantd/config.yaml, and environment variables (TENANTD_REGISTRY_DSN).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	// A missing .env file is fine; it only supplies optional overrides.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: error loading .env file: %v\n", err)
	}

	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return err
	}

	gateway, err := cluster.NewGateway(cfg.Cluster.KubeContext)
	if err != nil {
		return fmt.Errorf("failed to connect to cluster: %w", err)
	}
	driver := release.NewHelmDriver(cfg.Release.HelmBinary)

	orchCfg := orchestrator.Config{
		NamespacePrefix:       cfg.Cluster.NamespacePrefix,
		ChartRef:              cfg.Release.ChartRef,
		BaseDomain:            cfg.Provisioning.BaseDomain,
		AdminPath:             cfg.Provisioning.AdminPath,
		InstallTimeout:        cfg.Provisioning.InstallTimeout.Std(),
		PollInterval:          cfg.Provisioning.PollInterval.Std(),
		ProvisionDeadline:     cfg.Provisioning.ProvisionDeadline.Std(),
		DeleteConfirmDeadline: cfg.Provisioning.DeleteConfirmDeadline.Std(),
		SizingClasses:         cfg.Provisioning.SizingClasses,
		DefaultSizingClass:    cfg.Provisioning.DefaultSizingClass,
	}
	orch := orchestrator.New(orchCfg, reg, gateway, driver)
	reporter := status.NewReporter(orchCfg, reg, gateway)
	srv := server.New(cfg.Server, orch, reporter, gateway, driver, rootCmd.Version)

	// Recovery runs concurrently with serving: resumed operations can take
	// as long as a fresh provision and must not block the API.
	go func() {
		if err := orch.Resume(ctx); err != nil {
			logging.Error("Serve", err, "Startup recovery failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("Serve", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}

// openRegistry selects the tenant registry backend from configuration.
func openRegistry(ctx context.Context, cfg config.RegistryConfig) (registry.Registry, error) {
	switch cfg.Backend {
	case config.RegistryBackendPostgres:
		store, err := pgregistry.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres registry: %w", err)
		}
		return store, nil
	case config.RegistryBackendMemory, "":
		logging.Warn("Serve", "Using in-memory registry; tenant records will not survive a restart")
		return registry.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}
