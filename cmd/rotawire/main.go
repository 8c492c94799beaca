package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/rotawire/internal/config"
	applog "github.com/vovakirdan/rotawire/internal/log"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg    config.Config
	logger *zerolog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rotawire",
	Short: "Push notifications for shift schedules",
	Long: `rotawire delivers schedule updates and notifications to connected
employees over WebSocket rooms.

Available subcommands:
  serve  - Run the push server
  listen - Connect to a server and print received events
  token  - Mint a signed access token`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		bootstrap := applog.New("info", "console")

		loaded, path, err := config.Load(bootstrap, configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = loaded

		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		logger = applog.New(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $ROTAWIRE_CONFIG_DEFAULT_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
