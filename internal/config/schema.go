package config

type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeBool   FieldType = "bool"
)

type ConfigField struct {
	Key         string      `json:"key"`
	Type        FieldType   `json:"type"`
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Secret      bool        `json:"secret,omitempty"`
	Section     string      `json:"section"`
}

type ConfigSection struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

var ConfigSections = []ConfigSection{
	{Name: "server", Description: "Server & Port Settings", Order: 1},
	{Name: "provider", Description: "Sandbox Provider API", Order: 2},
	{Name: "store", Description: "Durable File Store", Order: 3},
	{Name: "workspace", Description: "Workspace Defaults", Order: 4},
	{Name: "reconcile", Description: "Status Reconciliation", Order: 5},
}

var ConfigSchema = []ConfigField{
	// Server Settings
	{Key: "database_url", Type: FieldTypeString, Description: "SQLite database path", Default: "drydock.db", Section: "server"},
	{Key: "api_port", Type: FieldTypeInt, Description: "Operational API port", Default: 8585, Section: "server"},
	{Key: "mcp_port", Type: FieldTypeInt, Description: "MCP tool server port", Default: 8586, Section: "server"},
	{Key: "debug", Type: FieldTypeBool, Description: "Enable debug logging", Default: false, Section: "server"},

	// Sandbox Provider API
	{Key: "provider.base_url", Type: FieldTypeString, Description: "Sandbox provider API base URL", Default: "https://api.sandbox.local", Section: "provider"},
	{Key: "provider.api_key", Type: FieldTypeString, Description: "Sandbox provider API key", Required: true, Secret: true, Section: "provider"},
	{Key: "provider.create_timeout_seconds", Type: FieldTypeInt, Description: "Budget for sandbox creation before it counts as failed", Default: 120, Section: "provider"},
	{Key: "provider.poll_interval_seconds", Type: FieldTypeInt, Description: "Interval between sandbox status polls", Default: 2, Section: "provider"},

	// Durable File Store
	{Key: "store.root", Type: FieldTypeString, Description: "Root directory of the durable file store", Default: "./store", Section: "store"},

	// Workspace Defaults
	{Key: "workspace.auto_stop_minutes", Type: FieldTypeInt, Description: "Provider auto-stop interval for new workspaces", Default: 30, Section: "workspace"},
	{Key: "workspace.auto_archive_minutes", Type: FieldTypeInt, Description: "Provider auto-archive interval for new workspaces", Default: 60, Section: "workspace"},
	{Key: "workspace.ephemeral", Type: FieldTypeBool, Description: "Mark new workspaces ephemeral", Default: true, Section: "workspace"},

	// Status Reconciliation
	{Key: "reconcile_interval_minutes", Type: FieldTypeInt, Description: "Cadence of the background provider status sweep (0 disables)", Default: 2, Section: "reconcile"},
}

func GetConfigSchema() []ConfigField {
	return ConfigSchema
}

func GetConfigSections() []ConfigSection {
	return ConfigSections
}

func GetFieldByKey(key string) *ConfigField {
	for _, field := range ConfigSchema {
		if field.Key == key {
			return &field
		}
	}
	return nil
}

func GetFieldsBySection(section string) []ConfigField {
	var fields []ConfigField
	for _, field := range ConfigSchema {
		if field.Section == section {
			fields = append(fields, field)
		}
	}
	return fields
}
