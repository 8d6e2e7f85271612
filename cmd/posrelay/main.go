package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/issac1998/pos-relay/internal/config"
	"github.com/issac1998/pos-relay/internal/logging"
)

var Version = "dev"

type globalFlags struct {
	configFile string
	envFiles   []string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "posrelay",
		Short:         "Relay POS terminal events to the partner transaction API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "configs/posrelay.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env", []string{".env"}, "Dotenv files loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(runCmd(flags))
	rootCmd.AddCommand(replayCmd(flags))
	rootCmd.AddCommand(resendCmd(flags))
	rootCmd.AddCommand(ledgerCmd(flags))
	return rootCmd
}

// setup loads configuration and creates the process logger
func setup(flags *globalFlags) (*config.Config, *logging.Logger, error) {
	if err := config.LoadDotEnv(flags.envFiles...); err != nil {
		return nil, nil, err
	}

	path := flags.configFile
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = logging.LogLevel(flags.logLevel)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, logging.GetLogger(), nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()
	return ctx, cancel
}
