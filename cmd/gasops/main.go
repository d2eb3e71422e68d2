// Command gasops runs the 九九瓦斯行 service stack: the process supervisor,
// the LINE webhook bot, the simulated IDA Pro MCP server and the database
// maintenance commands.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jiujiugas/gasops"
	"github.com/jiujiugas/gasops/internal/config"
	"github.com/jiujiugas/gasops/internal/sentinel"
)

// version is set at build time via ldflags.
var version = "dev"

// app carries the global flags and what PersistentPreRunE resolves from them.
type app struct {
	configFile  string
	envFile     string
	databaseURL string
	stateDir    string
	logLevel    string
	logFormat   string

	cfg *config.Config
	log *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "gasops",
		Short:        "九九瓦斯行 service supervisor, LINE bot and maintenance tools",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "config file (YAML, TOML or JSON) using the environment key names")
	f.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	f.StringVar(&a.databaseURL, "database-url", "", "PostgreSQL URL, overrides "+config.KeyDatabaseURL)
	f.StringVar(&a.stateDir, "state-dir", "", "supervisor state directory (default <tmp>/"+gasops.DefaultStateDirName+")")
	f.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error, overrides "+config.KeyLogLevel)
	f.StringVar(&a.logFormat, "log-format", "", "text or json, overrides "+config.KeyLogFormat)

	root.AddCommand(
		newSuperviseCmd(a),
		newBotCmd(a),
		newMCPCmd(a),
		newDBCmd(a),
	)
	return root
}

// setup loads the configuration, applies flag overrides and installs the
// logger.
func (a *app) setup(logOut io.Writer) error {
	cfg, err := config.Load(config.Options{ConfigFile: a.configFile, EnvFile: a.envFile})
	if err != nil {
		return err
	}
	if a.databaseURL != "" {
		cfg.DatabaseURL = a.databaseURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if a.stateDir == "" {
		a.stateDir = filepath.Join(os.TempDir(), gasops.DefaultStateDirName)
	}

	log, err := newLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	gasops.SetLogger(log.With("component", "supervisor"))

	a.cfg = cfg
	a.log = log
	return nil
}

const errLogFormat = sentinel.Error("log format must be text or json")

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w, got %q", errLogFormat, format)
	}
}
