/*
Package config manages the TOML config of fieldserve.

The file lives at ~/.config/fieldserve/fieldserve.toml and is created with
defaults on first run. A file that fails to decode is parsed section by
section so one bad key does not discard the rest.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/fieldserve/internal/utils"
)

const (
	appName  = "fieldserve"
	fileName = "fieldserve.toml"
)

// Config holds the entire config structure
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Lookup LookupConfig `toml:"lookup"`
	CLI    CliConfig    `toml:"cli"`
}

// EngineConfig has completion behaviour options.
type EngineConfig struct {
	DebounceMs     int      `toml:"debounce_ms"`
	MinPrefix      int      `toml:"min_prefix"`
	MaxSuggestions int      `toml:"max_suggestions"`
	BuiltinFields  []string `toml:"builtin_fields"`
	EscapeValues   bool     `toml:"escape_values"`
}

// LookupConfig holds options for the value lookup backend.
type LookupConfig struct {
	Endpoint        string `toml:"endpoint"`
	TimeoutMs       int    `toml:"timeout_ms"`
	Limit           int    `toml:"limit"`
	FailureTTLMs    int    `toml:"failure_ttl_ms"`
	VocabularyTTLMs int    `toml:"vocabulary_ttl_ms"`
	ValuesFile      string `toml:"values_file"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	Fields      []string `toml:"fields"`
	HistoryFile string   `toml:"history_file"`
}

// Debounce returns the debounce delay.
func (e EngineConfig) Debounce() time.Duration {
	return time.Duration(e.DebounceMs) * time.Millisecond
}

// Timeout returns the per lookup timeout.
func (l LookupConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

// FailureTTL returns how long a failed lookup stays cached as empty.
func (l LookupConfig) FailureTTL() time.Duration {
	return time.Duration(l.FailureTTLMs) * time.Millisecond
}

// VocabularyTTL returns how long a fetched vocabulary stays cached.
func (l LookupConfig) VocabularyTTL() time.Duration {
	return time.Duration(l.VocabularyTTLMs) * time.Millisecond
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", appName)
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", appName)
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for fieldserve.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, fileName), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from -config flag
// 2. Default path
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}
	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DebounceMs:     300,
			MinPrefix:      1,
			MaxSuggestions: 50,
			BuiltinFields:  []string{"_time", "_msg"},
			EscapeValues:   false,
		},
		Lookup: LookupConfig{
			Endpoint:        "",
			TimeoutMs:       5000,
			Limit:           50,
			FailureTTLMs:    0,
			VocabularyTTLMs: 0,
			ValuesFile:      "",
		},
		CLI: CliConfig{
			Fields:      []string{},
			HistoryFile: "",
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	return LoadConfig(configPath)
}

// LoadConfig loads from a TOML file, falling back to a partial parse.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "engine"); ok {
		extractEngineConfig(section, &config.Engine)
	}
	if section, ok := utils.ExtractSection(tempConfig, "lookup"); ok {
		extractLookupConfig(section, &config.Lookup)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	return config, nil
}

func extractEngineConfig(data map[string]any, engine *EngineConfig) {
	if val, ok := utils.ExtractInt64(data, "debounce_ms"); ok {
		engine.DebounceMs = val
	}
	if val, ok := utils.ExtractInt64(data, "min_prefix"); ok {
		engine.MinPrefix = val
	}
	if val, ok := utils.ExtractInt64(data, "max_suggestions"); ok {
		engine.MaxSuggestions = val
	}
	if val, ok := utils.ExtractStrings(data, "builtin_fields"); ok {
		engine.BuiltinFields = val
	}
	if val, ok := utils.ExtractBool(data, "escape_values"); ok {
		engine.EscapeValues = val
	}
}

func extractLookupConfig(data map[string]any, lookup *LookupConfig) {
	if val, ok := utils.ExtractString(data, "endpoint"); ok {
		lookup.Endpoint = val
	}
	if val, ok := utils.ExtractInt64(data, "timeout_ms"); ok {
		lookup.TimeoutMs = val
	}
	if val, ok := utils.ExtractInt64(data, "limit"); ok {
		lookup.Limit = val
	}
	if val, ok := utils.ExtractInt64(data, "failure_ttl_ms"); ok {
		lookup.FailureTTLMs = val
	}
	if val, ok := utils.ExtractInt64(data, "vocabulary_ttl_ms"); ok {
		lookup.VocabularyTTLMs = val
	}
	if val, ok := utils.ExtractString(data, "values_file"); ok {
		lookup.ValuesFile = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractStrings(data, "fields"); ok {
		cli.Fields = val
	}
	if val, ok := utils.ExtractString(data, "history_file"); ok {
		cli.HistoryFile = val
	}
}

// RebuildConfigFile force creates a new fieldserve.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return err
	}
	return utils.SaveTOMLFile(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}
