package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config carries everything the serve process needs. Values resolve in viper
// order: explicit flag, DRYDOCK_* environment variable, config file, default.
type Config struct {
	DatabaseURL string
	APIPort     int
	MCPPort     int
	Debug       bool

	Provider  ProviderConfig
	Store     StoreConfig
	Workspace WorkspaceDefaults

	ReconcileIntervalMinutes int
}

// ProviderConfig addresses the remote sandbox provider API.
type ProviderConfig struct {
	BaseURL              string
	APIKey               string
	CreateTimeoutSeconds int
	PollIntervalSeconds  int
}

// CreateTimeout returns the sandbox creation budget as a duration.
func (p ProviderConfig) CreateTimeout() time.Duration {
	return time.Duration(p.CreateTimeoutSeconds) * time.Second
}

// PollInterval returns the status poll cadence as a duration.
func (p ProviderConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// StoreConfig locates the durable file store root.
type StoreConfig struct {
	Root string
}

// WorkspaceDefaults are applied to workspaces created without explicit options.
type WorkspaceDefaults struct {
	AutoStopMinutes    int
	AutoArchiveMinutes int
	Ephemeral          bool
}

// Load resolves the full configuration. The provider API key is the only hard
// requirement; everything else has a workable default.
func Load() (*Config, error) {
	setDefaults()

	cfg := &Config{
		DatabaseURL: getString("database_url", "DATABASE_URL"),
		APIPort:     getInt("api_port", "API_PORT"),
		MCPPort:     getInt("mcp_port", "MCP_PORT"),
		Debug:       getBool("debug", "DEBUG"),
		Provider: ProviderConfig{
			BaseURL:              getString("provider.base_url", "PROVIDER_BASE_URL"),
			APIKey:               getString("provider.api_key", "PROVIDER_API_KEY"),
			CreateTimeoutSeconds: getInt("provider.create_timeout_seconds", "PROVIDER_CREATE_TIMEOUT_SECONDS"),
			PollIntervalSeconds:  getInt("provider.poll_interval_seconds", "PROVIDER_POLL_INTERVAL_SECONDS"),
		},
		Store: StoreConfig{
			Root: getString("store.root", "STORE_ROOT"),
		},
		Workspace: WorkspaceDefaults{
			AutoStopMinutes:    getInt("workspace.auto_stop_minutes", "WORKSPACE_AUTO_STOP_MINUTES"),
			AutoArchiveMinutes: getInt("workspace.auto_archive_minutes", "WORKSPACE_AUTO_ARCHIVE_MINUTES"),
			Ephemeral:          getBool("workspace.ephemeral", "WORKSPACE_EPHEMERAL"),
		},
		ReconcileIntervalMinutes: getInt("reconcile_interval_minutes", "RECONCILE_INTERVAL_MINUTES"),
	}

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("provider API key is required (set DRYDOCK_PROVIDER_API_KEY or provider.api_key)")
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("database_url", "drydock.db")
	viper.SetDefault("api_port", 8585)
	viper.SetDefault("mcp_port", 8586)
	viper.SetDefault("debug", false)
	viper.SetDefault("provider.base_url", "https://api.sandbox.local")
	viper.SetDefault("provider.create_timeout_seconds", 120)
	viper.SetDefault("provider.poll_interval_seconds", 2)
	viper.SetDefault("store.root", "./store")
	viper.SetDefault("workspace.auto_stop_minutes", 30)
	viper.SetDefault("workspace.auto_archive_minutes", 60)
	viper.SetDefault("workspace.ephemeral", true)
	viper.SetDefault("reconcile_interval_minutes", 2)
}

// getString prefers viper (flags, config file, bound envs) and falls back to
// a bare DRYDOCK_ environment variable so the package works without cobra.
func getString(key, env string) string {
	if v := viper.GetString(key); v != "" && viper.IsSet(key) {
		return v
	}
	if v := os.Getenv("DRYDOCK_" + env); v != "" {
		return v
	}
	return viper.GetString(key)
}

func getInt(key, env string) int {
	if v := os.Getenv("DRYDOCK_" + env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return viper.GetInt(key)
}

func getBool(key, env string) bool {
	if v := os.Getenv("DRYDOCK_" + env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return viper.GetBool(key)
}
