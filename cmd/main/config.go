package main

import (
	"fmt"

	"drydock/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List every configuration key with its type and default",
	Run: func(cmd *cobra.Command, args []string) {
		for _, section := range config.GetConfigSections() {
			fmt.Printf("%s\n", section.Description)
			for _, field := range config.GetFieldsBySection(section.Name) {
				line := fmt.Sprintf("  %-34s %-6s %s", field.Key, field.Type, field.Description)
				if field.Required {
					line += " (required)"
				} else if field.Default != nil {
					line += fmt.Sprintf(" (default: %v)", field.Default)
				}
				fmt.Println(line)
			}
			fmt.Println()
		}
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Never print the provider credential.
		redacted := *cfg
		if redacted.Provider.APIKey != "" {
			redacted.Provider.APIKey = "********"
		}

		out, err := yaml.Marshal(map[string]interface{}{
			"database_url":               redacted.DatabaseURL,
			"api_port":                   redacted.APIPort,
			"mcp_port":                   redacted.MCPPort,
			"debug":                      redacted.Debug,
			"reconcile_interval_minutes": redacted.ReconcileIntervalMinutes,
			"provider": map[string]interface{}{
				"base_url":               redacted.Provider.BaseURL,
				"api_key":                redacted.Provider.APIKey,
				"create_timeout_seconds": redacted.Provider.CreateTimeoutSeconds,
				"poll_interval_seconds":  redacted.Provider.PollIntervalSeconds,
			},
			"store": map[string]interface{}{
				"root": redacted.Store.Root,
			},
			"workspace": map[string]interface{}{
				"auto_stop_minutes":    redacted.Workspace.AutoStopMinutes,
				"auto_archive_minutes": redacted.Workspace.AutoArchiveMinutes,
				"ephemeral":            redacted.Workspace.Ephemeral,
			},
		})
		if err != nil {
			return err
		}

		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Printf("# config file: %s\n", used)
		}
		fmt.Print(string(out))
		return nil
	},
}
