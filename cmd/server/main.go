// Command server runs the Team HQ messaging service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"teamhq/internal/config"
	"teamhq/internal/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "teamhq",
	Short:         "Team HQ messaging service",
	Long:          "Team HQ serves team channels, direct messages and realtime delivery over HTTP and websockets.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is $HOME/.config/teamhq/config.yaml)")
	flags.String("log-level", "", "override logging level (debug, info, warn, error)")
	flags.String("log-format", "", "override logging format (json, console)")
}

// loadConfig reads configuration for cmd and initializes logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader()
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if used := loader.ConfigFileUsed(); used != "" {
		log := logging.Component("server")
		log.Debug().Str("config_file", used).Msg("loaded config file")
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
