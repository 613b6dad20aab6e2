// Package main provides the ev CLI entry point.
// ev is an interactive shell for inspecting a Matrix account from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ev/internal/config"
	"ev/internal/logger"
	"ev/internal/version"
)

var (
	logLevel string
	logFile  string
	cfg      *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   version.Project,
	Short: version.Project + " - " + version.Blurb,
	Long: `ev is an interactive shell for a Matrix account. Commands start with '/',
Tab completes command names and arguments, and '/help' lists what is available.`,
	Args:         cobra.NoArgs,
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         runShell,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetFormattedVersion())
	},
}

// configCmd prints the resolved configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration ev would run with after applying flags, EV_*
environment variables, .env files and config.yaml. The password is masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := cfg.Dump()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	flags.String("data-dir", "", "Directory for the Matrix database [default: $XDG_DATA_HOME/ev]")
	flags.String("cache-dir", "", "Directory for the command history [default: $XDG_CACHE_HOME/ev]")
	flags.String("config-dir", "", "Directory of config.yaml and .env [default: $XDG_CONFIG_HOME/ev]")
	flags.Bool("no-matrix", false, "Start without the Matrix commands")
	flags.Int("history-size", 0, "Number of command lines to remember [default: 100]")

	bindings := map[string]string{
		config.KeyLogLevel:    "log-level",
		config.KeyLogFile:     "log-file",
		config.KeyDataDir:     "data-dir",
		config.KeyCacheDir:    "cache-dir",
		config.KeyConfigDir:   "config-dir",
		config.KeyNoMatrix:    "no-matrix",
		config.KeyHistorySize: "history-size",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", flag, err)
			os.Exit(1)
		}
	}

	rootCmd.SetVersionTemplate(version.GetFormattedVersion() + "\n")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if err := logger.Configure(logLevel, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}

	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// config.yaml and .env may set the log options too
	if cfg.LogLevel != logLevel || cfg.LogFile != logFile {
		if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
			os.Exit(1)
		}
	}
}

func runShell(_ *cobra.Command, _ []string) error {
	logger.Info("Starting ev", "version", version.Version, "config", cfg.ConfigFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := newApp(ctx, cfg, cancel)
	if err != nil {
		logger.Fatal("Failed to set up commands", "error", err)
	}
	defer app.close()

	return app.run(ctx)
}
