// Package main provides the entry point for the modisfetch downloader.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/modisfetch/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfgFile string
	debug   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "modisfetch [DEST]",
	Short: "modisfetch - MODIS tile downloader",
	Long: `modisfetch mirrors MODIS granules from an archive into a local directory.

Without a subcommand it behaves like "modisfetch download".

Features:
  - Day-range resolution against the archive catalog
  - Tile selection by name or coordinate
  - Resumable sessions with supersession of reprocessed granules
  - FTP, HTTPS (Earthdata), S3, Azure Blob and local mirror sources
  - Manifest of every transferred file
  - Scheduled sync with status API and Prometheus metrics`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDownload,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("modisfetch %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "also write the log to this file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "force debug logging")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))

	addSourceFlags(rootCmd)
	addDownloadFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(fromListCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(archiveCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// flagBinding maps a command flag to a configuration key.
type flagBinding struct {
	flag string
	key  string
}

// bindFlags binds the flags of the running command. Commands share
// configuration keys, so binding happens once the command is known.
func bindFlags(cmd *cobra.Command, bindings []flagBinding) {
	for _, b := range bindings {
		if f := cmd.Flags().Lookup(b.flag); f != nil {
			_ = viper.BindPFlag(b.key, f)
		}
	}
}

// loadConfig loads the configuration and sets up logging. The optional
// positional argument is the destination directory. The returned function
// closes the log file.
func loadConfig(args []string) (*config.Config, *slog.Logger, func(), error) {
	if len(args) > 0 {
		viper.Set("download.destination", args[0])
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger, closeLog, err := setupLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)

	return cfg, logger, closeLog, nil
}

func setupLogger(cfg config.LoggingConfig, stdout io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	out := stdout
	closeLog := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) //#nosec G302 G304 -- log file path from configuration
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = io.MultiWriter(stdout, f)
		closeLog = func() { _ = f.Close() }
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), closeLog, nil
}
