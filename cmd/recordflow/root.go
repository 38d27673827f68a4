package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/observability"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "recordflow",
		Short: "Rule-driven record transformer",
		Long: `recordflow validates, transforms and enriches structured records
according to an ordered list of business rules.

Records can be processed from JSON lines on the command line or served
over HTTP. Rules are read from a YAML configuration file.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", getEnvOrDefault(envConfigPath, ""),
		"Path to configuration file (env "+envConfigPath+")")
	flags.StringVar(&opts.logLevel, "log-level", getEnvOrDefault(envLogLevel, ""),
		"Log level: debug, info, warn, error (env "+envLogLevel+"; default from config)")
	flags.StringVar(&opts.logFormat, "log-format", getEnvOrDefault(envLogFormat, ""),
		"Log format: json, console (env "+envLogFormat+"; default from config)")

	cmd.AddCommand(
		newProcessCmd(opts),
		newServeCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// loadConfig reads and validates the configuration file. Without a path
// it returns the defaults, which have no rules.
func (o *rootOptions) loadConfig() (*config.RecordflowConfig, error) {
	if o.configPath == "" {
		return config.DefaultConfig(), nil
	}

	path, err := config.ResolveConfigPath(o.configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o.configPath = path
	return cfg, nil
}

// newLogger builds the logger from the config, with flags taking
// precedence. output overrides the configured destination when set.
func (o *rootOptions) newLogger(cfg *config.RecordflowConfig, output string) (observability.Logger, error) {
	logCfg := observability.DefaultLogConfig()
	if obs := cfg.Spec.Observability; obs != nil && obs.Logging != nil {
		logCfg.Level = obs.Logging.Level
		logCfg.Format = obs.Logging.Format
		logCfg.Output = obs.Logging.Output
	}
	if o.logLevel != "" {
		logCfg.Level = o.logLevel
	}
	if o.logFormat != "" {
		logCfg.Format = o.logFormat
	}
	if output != "" {
		logCfg.Output = output
	}

	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	observability.SetGlobalLogger(logger)
	return logger, nil
}
