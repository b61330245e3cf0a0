package main

import (
	"fmt"
	"os"
	"path/filepath"

	"drydock/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "drydock",
		Short: "Drydock - sandbox workspace control plane for coding agents",
		Long: `Drydock manages ephemeral sandbox workspaces for autonomous coding agents.
It provisions provider sandboxes, bridges project files in and out, runs
builds and dev servers, and exposes the whole surface as MCP tools.`,
		Version: version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/drydock/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stdioCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSchemaCmd)

	serveCmd.Flags().Int("api-port", 0, "operational API port (overrides config)")
	serveCmd.Flags().Int("mcp-port", 0, "MCP server port (overrides config)")
	_ = viper.BindPFlag("api_port", serveCmd.Flags().Lookup("api-port"))
	_ = viper.BindPFlag("mcp_port", serveCmd.Flags().Lookup("mcp-port"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err == nil {
				configDir = filepath.Join(home, ".config")
			}
		}
		if configDir != "" {
			viper.AddConfigPath(filepath.Join(configDir, "drydock"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DRYDOCK")
	viper.AutomaticEnv()

	// Missing config file is fine; env vars and defaults cover everything.
	_ = viper.ReadInConfig()
}

func initLogging() {
	logging.Initialize(viper.GetBool("debug"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
