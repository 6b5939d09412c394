package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shahar-caura/salestalk/internal/config"
	"github.com/shahar-caura/salestalk/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// defaultConfigFile is used when --config is not given and the file exists.
const defaultConfigFile = "salestalk.yaml"

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(logger).ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("salestalk failed", "error", err)
		os.Exit(1)
	}
}

// app carries state shared by subcommands once configuration is loaded.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	a := &app{logger: logger}

	root := &cobra.Command{
		Use:           "salestalk",
		Short:         "Classify business questions into intent, subject, measure, dimension and time",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] != "" {
				return nil
			}
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+defaultConfigFile+" when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newClassifyCmd(a),
		newServeCmd(a),
		newTaxonomyCmd(a),
		newReviewCmd(a),
		newCompletionCmd(),
		newVersionCmd(),
	)
	registerCompletions(root)
	return root
}

// init loads env files and config, then rebuilds the logger from it.
func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadEnvFiles(); err != nil {
		a.logger.Warn("env file ignored", "error", err)
	}

	path := a.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", defaultConfigFile, err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the salestalk version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "salestalk %s\n", version)
		},
	}
}
