package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ent0n29/echo/internal/config"
	"github.com/ent0n29/echo/internal/logging"
)

type rootFlags struct {
	logLevel  string
	logPretty bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "echo",
		Short:         "Voice agent client for ElevenLabs Conversational AI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override APP_LOG_LEVEL")
	root.PersistentFlags().BoolVar(&flags.logPretty, "log-pretty", false, "human readable log output")

	root.AddCommand(newServeCmd(flags), newVoicesCmd(flags), newAgentsCmd(flags))
	return root
}

// load reads the environment and applies command line overrides.
func (f *rootFlags) load(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("log-pretty") {
		cfg.LogPretty = f.logPretty
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogPretty), nil
}
