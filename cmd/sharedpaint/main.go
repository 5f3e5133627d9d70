package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kingctan/sharedpainter/internal/config"
	"github.com/kingctan/sharedpainter/internal/errors"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┬ ┬┌─┐┬─┐┌─┐┌┬┐  ┌─┐┌─┐┬┌┐┌┌┬┐
  └─┐├─┤├─┤├┬┘├┤  ││  ├─┘├─┤││││ │
  └─┘┴ ┴┴ ┴┴└─└─┘─┴┘  ┴  ┴ ┴┴┘└┘ ┴
`

func main() {
	var configPath string

	if os.Getenv("NO_COLOR") != "" {
		errors.DisableColors()
	}

	rootCmd := &cobra.Command{
		Use:   "sharedpaint",
		Short: "Shared painting over a relay or peer-to-peer",
		Long: `SharedPaint keeps a drawing in sync between painters.

Painters join a channel through a relay server or connect to each
other directly. One painter acts as super-peer and forwards traffic;
late joiners receive the full drawing in a sync package.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "Path to the configuration file")

	rootCmd.AddCommand(
		peerCmd(&configPath),
		relayCmd(&configPath),
		snapshotCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// newLogger builds the process logger from the log settings.
func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
