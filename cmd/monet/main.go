package main

import (
	"context"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/fang"
	"github.com/mark3labs/monet/internal/config"
	"github.com/mark3labs/monet/internal/logger"
	"github.com/spf13/cobra"
)

const logoText = "█▀▄▀█ █▀█ █▄ █ █▀▀ ▀█▀\n█ ▀ █ █▄█ █ ▀█ ██▄  █ "

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "monet",
	Short: "Iterative SVG drawing with language models",
}

func renderLogo() string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#cba6f7")).Bold(true).Render(logoText)
}

func init() {
	rootCmd.Long = renderLogo() + `

monet asks a vision-capable language model to paint an SVG canvas one layer
at a time. Each session plans the piece, draws up to a bounded number of
iterations while looking at the rendered canvas, then writes an artist
statement. Every step is saved to the output directory and journaled in an
embedded NATS JetStream store.`

	rootCmd.AddCommand(drawCmd)
	rootCmd.AddCommand(statementCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// applyLogging points the default logger at the configured level and file.
func applyLogging(cfg *config.Config) error {
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.Default.SetLevel(level)
	}
	if cfg.LogFile != "" {
		if err := logger.Default.OpenFile(cfg.LogFile); err != nil {
			return err
		}
	}
	return nil
}
