package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"promptcal/internal/config"
	appLog "promptcal/internal/log"
)

const (
	configEnv         = "PROMPTCAL_CONFIG"
	defaultConfigPath = "./promptcal.yaml"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded once in the root PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "promptcal",
	Short: "Calendar with a natural-language scheduling assistant",
	Long: `promptcal keeps a calendar of events created from plain-language prompts
(optionally with an image) by Gemini or an OpenAI-compatible model, merged with
read-only ICS subscriptions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := resolveConfigPath(configPath)
		c, err := config.Load(path)
		if err != nil {
			appLog.Error("failed to load config", err, "config_path", path)
			return err
		}
		if logLevel != "" {
			c.LogLevel = logLevel
		}
		appLog.SetLevel(appLog.ParseLevel(c.LogLevel))
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default $"+configEnv+" or "+defaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, askCmd, settingsCmd, refreshCmd, snapshotCmd)
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	return defaultConfigPath
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("failed to read .env", "error", err.Error())
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
