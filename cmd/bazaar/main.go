// Command bazaar is the terminal client for the bazaar realtime layer: it
// keeps a socket open for the signed-in user and prints incoming activity.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bhandras/bazaar/internal/config"
	"github.com/bhandras/bazaar/internal/credential"
	"github.com/bhandras/bazaar/pkg/logger"
)

var (
	flagServer   string
	flagLogLevel string
	flagHome     string
)

var rootCmd = &cobra.Command{
	Use:           "bazaar",
	Short:         "Bazaar realtime client",
	Long:          "Connect to a bazaar server, follow conversations and receive notifications.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "server URL (overrides BAZAAR_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "bazaar home directory (default ~/.bazaar)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the client configuration with the persistent flags applied
// and configures the logger from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var o config.Overrides
	flags := cmd.Flags()
	if flags.Changed("server") {
		o.ServerURL = &flagServer
	}
	if flags.Changed("log-level") {
		o.LogLevel = &flagLogLevel
	}
	if flags.Changed("home") {
		o.Home = &flagHome
	}

	cfg, err := config.Load(o)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if lvl := cfg.Level(); lvl != "" {
		parsed, err := logger.ParseLevel(lvl)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(parsed)
	}
	logger.Debugf("config: server=%s home=%s", cfg.ServerURL, cfg.Home)
	return cfg, nil
}

func credentialStore(cfg *config.Config) *credential.FileStore {
	return credential.NewFileStore(cfg.AccessKey)
}
