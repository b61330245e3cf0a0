package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"drydock/internal/api"
	"drydock/internal/config"
	"drydock/internal/db"
	"drydock/internal/db/repositories"
	"drydock/internal/logging"
	"drydock/internal/mcp"
	"drydock/internal/sandbox"
	"drydock/internal/services"
	"drydock/internal/storage"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API and MCP servers",
	Long: `Starts the control plane: the MCP tool server agents connect to, the
operational HTTP API, and the background status reconciler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdio for direct agent embedding",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStdio()
	},
}

// buildServices wires the whole service graph from configuration.
func buildServices(cfg *config.Config, database db.Database) (*repositories.Repositories, mcp.Services, *services.ReconcilerService, error) {
	repos := repositories.New(database)

	catalog, err := sandbox.DefaultCatalog()
	if err != nil {
		return nil, mcp.Services{}, nil, fmt.Errorf("load image catalog: %w", err)
	}

	provider := sandbox.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)

	store, err := storage.NewDiskFileStore(cfg.Store.Root, storage.DefaultConfig())
	if err != nil {
		return nil, mcp.Services{}, nil, fmt.Errorf("open file store: %w", err)
	}

	lifecycle := services.NewLifecycleService(repos, provider, catalog,
		services.WithCreateBudget(cfg.Provider.CreateTimeout(), cfg.Provider.PollInterval()),
		services.WithWorkspaceDefaults(
			int64(cfg.Workspace.AutoStopMinutes),
			int64(cfg.Workspace.AutoArchiveMinutes),
			cfg.Workspace.Ephemeral,
		),
	)
	engine := services.NewExecutionEngine(repos, provider, store)
	bridge := services.NewFileBridge(repos, provider, store)
	builds := services.NewBuildService(repos, engine, store)
	pipeline := services.NewCompletionPipeline(repos, bridge, engine, store)

	reconciler := services.NewReconcilerService(repos, lifecycle,
		time.Duration(cfg.ReconcileIntervalMinutes)*time.Minute)

	return repos, mcp.Services{
		Lifecycle: lifecycle,
		Engine:    engine,
		Bridge:    bridge,
		Builds:    builds,
		Pipeline:  pipeline,
		Store:     store,
	}, reconciler, nil
}

func runServe() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repos, svcs, reconciler, err := buildServices(cfg, database)
	if err != nil {
		return err
	}

	if err := reconciler.Start(); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}
	defer reconciler.Stop()

	mcpServer := mcp.NewServer(repos, svcs)
	apiServer := api.New(cfg, database, svcs.Lifecycle)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mcpServer.Start(ctx, cfg.MCPPort); err != nil {
			logging.Error("MCP server: %v", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(ctx); err != nil {
			logging.Error("API server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("Received %s, shutting down", sig)
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := mcpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("MCP shutdown: %v", err)
	}

	wg.Wait()
	return nil
}

func runStdio() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repos, svcs, reconciler, err := buildServices(cfg, database)
	if err != nil {
		return err
	}

	if err := reconciler.Start(); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}
	defer reconciler.Stop()

	return mcp.NewServer(repos, svcs).StartStdio(context.Background())
}
