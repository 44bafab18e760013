/*
Package main runs the fieldserve completion engine as a msgpack IPC server or
as an interactive CLI.

Note: This is a BETA release. APIs and functionality may rapidly change.

FieldServe completes `field:value` search queries as they are typed. Field
names come from a static list; values are looked up per field from a search
backend, debounced and cached, then ranked by popularity.

# Usage

Serve a host application over stdin/stdout, looking values up over HTTP:

	fieldserve -endpoint http://localhost:9428/select/logsql/field_values

Try completion interactively with values from a TOML file:

	fieldserve -c -values values.toml

# Configuration

Options live in a TOML file, created with defaults on first start at
~/.config/fieldserve/fieldserve.toml:

	[engine]
	debounce_ms = 300
	min_prefix = 1
	max_suggestions = 50
	builtin_fields = ["_time", "_msg"]

	[lookup]
	endpoint = ""
	timeout_ms = 5000
	limit = 50

	[cli]
	fields = ["env", "host"]

Relative paths in the file are resolved next to it. Flags override the file.

# Command Line Flags

	-config string
	    Path to a config file
	-endpoint string
	    Field values endpoint
	-values string
	    TOML file with static field values
	-fields string
	    Comma separated field names
	-d  Enable debug logging
	-c  Run the interactive CLI instead of the IPC server
	-reset-config
	    Rewrite the default config file with defaults and exit
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/bastiangx/fieldserve/internal/cli"
	"github.com/bastiangx/fieldserve/internal/logger"
	"github.com/bastiangx/fieldserve/internal/utils"
	"github.com/bastiangx/fieldserve/pkg/config"
	"github.com/bastiangx/fieldserve/pkg/engine"
	"github.com/bastiangx/fieldserve/pkg/lookup"
	"github.com/bastiangx/fieldserve/pkg/server"
)

const (
	Version = "0.3.0-beta"
	AppName = "fieldserve"
	gh      = "https://github.com/bastiangx/fieldserve"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

func main() {
	showVersion := flag.Bool("version", false, "Show current version")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	configPath := flag.String("config", "", "Path to a custom config file")
	endpoint := flag.String("endpoint", "", "Field values endpoint (overrides config)")
	valuesFile := flag.String("values", "", "TOML file with static field values (overrides config)")
	fieldList := flag.String("fields", "", "Comma separated field names (overrides config)")
	resetConfig := flag.Bool("reset-config", false, "Rewrite the default config file with defaults and exit")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *resetConfig {
		if err := config.RebuildConfigFile(); err != nil {
			log.Fatalf("Failed to rebuild config: %v", err)
		}
		fmt.Fprintln(os.Stderr, "Config reset to defaults at", config.GetActiveConfigPath(""))
		os.Exit(0)
	}

	logger.Setup(*debugMode)
	// readline owns the terminal in CLI mode; let ^C reach it.
	if !*cliMode {
		sigHandler()
	}

	cfg, activePath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	configDir := ""
	if activePath != "" {
		configDir = filepath.Dir(activePath)
		log.Debugf("Using config file: (%s)", activePath)
	}
	baseDir := configDir

	if *endpoint != "" {
		cfg.Lookup.Endpoint = *endpoint
	}
	if *valuesFile != "" {
		cfg.Lookup.ValuesFile = *valuesFile
		baseDir = ""
	}
	if *fieldList != "" {
		cfg.CLI.Fields = splitFields(*fieldList)
	}

	src, fields, err := buildSource(cfg, baseDir)
	if err != nil {
		log.Fatalf("Failed to init value source: %v", err)
	}
	log.Debug("Fields", "count", len(fields), "builtin", cfg.Engine.BuiltinFields)

	opts := engine.OptionsFromConfig(cfg, src, fields)

	if *cliMode {
		eng, err := engine.New(opts)
		if err != nil {
			log.Fatalf("Failed to init engine: %v", err)
		}
		defer eng.Close()

		history := utils.ResolvePath(cfg.CLI.HistoryFile, configDir)
		if err := cli.NewInputHandler(eng, history).Start(); err != nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(os.Stdin, os.Stdout)
	opts.TimeRange = srv.TimeRange
	eng, err := engine.New(opts)
	if err != nil {
		log.Fatalf("Failed to init engine: %v", err)
	}
	defer eng.Close()
	srv.Attach(eng)

	showStartupInfo(cfg, activePath, len(fields))

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// buildSource picks the value backend: an HTTP endpoint if configured, else a
// values file, else nothing at all. Fields listed in a values file are added
// to the configured ones.
func buildSource(cfg *config.Config, baseDir string) (lookup.Source, []string, error) {
	fields := validFields(cfg.CLI.Fields)

	if cfg.Lookup.Endpoint != "" {
		src, err := lookup.NewHTTPSource(cfg.Lookup.Endpoint, cfg.Lookup.Timeout())
		if err != nil {
			return nil, nil, err
		}
		log.Debugf("Looking values up at %s", cfg.Lookup.Endpoint)
		return src, fields, nil
	}

	if cfg.Lookup.ValuesFile != "" {
		path := utils.ResolvePath(cfg.Lookup.ValuesFile, baseDir)
		if !utils.FileExists(path) {
			return nil, nil, fmt.Errorf("values file not found: %s", path)
		}
		src, err := lookup.LoadStaticFile(path)
		if err != nil {
			return nil, nil, err
		}
		log.Debugf("Loaded values from %s", path)
		return src, append(fields, validFields(src.Fields())...), nil
	}

	log.Warn("No endpoint or values file configured, every vocabulary is empty")
	return lookup.NewStaticSource(nil), fields, nil
}

// validFields drops names no segment could ever spell.
func validFields(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || utils.HasSpace(name) {
			log.Warnf("Ignoring field %q: names cannot be empty or contain whitespace", name)
			continue
		}
		out = append(out, name)
	}
	return out
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func printVersion() {
	l := logger.NewWithConfig("", log.InfoLevel, false, false, log.TextFormatter)

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	l.SetStyles(styles)

	l.Print("")
	l.Print("[ FieldServe ] field:value completions for search boxes")
	l.Print("", "version", Version)
	l.Print("")
	l.Print("use -h or --help to see available options")
	l.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process on stderr.
func showStartupInfo(cfg *config.Config, configPath string, fields int) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	log.Info("===========")
	log.Info(" FieldServe ")
	log.Info("===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("config: ( %s )", config.GetActiveConfigPath(configPath))
	log.Infof("fields: %d + %d builtin", fields, len(cfg.Engine.BuiltinFields))
	log.Infof("debounce: %v", cfg.Engine.Debounce())
	log.Info("status: ready")

	log.SetLevel(currentLevel)
}
