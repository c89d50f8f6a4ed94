package main

import (
	"fmt"

	"github.com/mark3labs/monet/internal/orchestrator"
	"github.com/mark3labs/monet/internal/provider"
	"github.com/mark3labs/monet/internal/render"
	"github.com/spf13/cobra"
)

var statementCmd = &cobra.Command{
	Use:   "statement DIR",
	Short: "Write the artist statement for a saved session",
	Long: `Write the artist statement for a saved session.

Reads the artist log and the newest canvas from DIR, exports final.svg and
final.png again and asks the model for a fresh artist-statement.txt. Useful
after an aborted run or to try another model on a finished piece.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatement,
}

func init() {
	f := statementCmd.Flags()
	f.StringP("provider", "p", "anthropic", "Model backend: anthropic, gemini or openai")
	f.StringP("model", "m", "", "Model name (default: the backend's default)")
	f.String("base-url", "", "Override the backend's API base URL")
	f.Float64("export-scale", 2, "Scale of final.png")
	f.String("renderer", "auto", "Rasterizer: auto, resvg or native")
	f.String("resvg", "", "Path to the resvg binary")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("log-file", "", "Write logs to this file")
}

func runStatement(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyLogging(cfg); err != nil {
		return err
	}

	p, err := provider.New(provider.Options{
		Name:    cfg.Provider,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return err
	}
	r, err := render.New(cfg.Renderer, cfg.ResvgPath)
	if err != nil {
		return err
	}

	_, err = orchestrator.WriteStatement(cmd.Context(), args[0], engineConfig(cfg), p, r,
		orchestrator.WithObserver(orchestrator.NewConsole(cmd.OutOrStdout())))
	if err != nil {
		return fmt.Errorf("statement failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Statement written to %s\n", args[0])
	return nil
}
