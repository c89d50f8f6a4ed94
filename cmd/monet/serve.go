package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/mcpserver"
	"github.com/mark3labs/monet/internal/render"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	http string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the drawing engine as MCP tools",
	Long: `Expose the drawing engine as MCP tools.

An MCP client plays the artist: it starts a drawing, submits a plan, submits
drawing turns in the same notes / svg-elements / status format the built-in
providers use, and finally submits an artist statement. Canvases are rendered
and saved exactly as with 'monet draw'.

Serves over stdio by default, or over streamable HTTP with --http.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.http, "http", "", "Serve over HTTP on this address (e.g. 127.0.0.1:8808)")
	f.Int("width", 800, "Default canvas width in pixels")
	f.Int("height", 600, "Default canvas height in pixels")
	f.String("background", "#FFFFFF", "Default canvas background color")
	f.IntP("iterations", "i", 25, "Default maximum drawing iterations")
	f.Int("max-empty-turns", 3, "Consecutive turns without drawing before finishing")
	f.Float64("export-scale", 2, "Scale of final.png")
	f.String("renderer", "auto", "Rasterizer: auto, resvg or native")
	f.String("resvg", "", "Path to the resvg binary")
	f.StringP("output", "o", "output", "Parent directory for session artifacts")
	f.StringP("template", "t", "", "Custom drawing prompt template")
	f.StringP("extra-instructions", "e", "", "Extra instructions appended to the drawing prompt")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("log-file", "", "Write logs to this file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyLogging(cfg); err != nil {
		return err
	}

	r, err := render.New(cfg.Renderer, cfg.ResvgPath)
	if err != nil {
		return err
	}
	srv := mcpserver.New(mcpserver.Config{
		OutputDir:     cfg.OutputDir,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Background:    cfg.Background,
		MaxIterations: cfg.MaxIterations,
		Engine:        engineConfig(cfg),
	}, r)

	if serveFlags.http == "" {
		return srv.ServeStdio()
	}

	if _, err := srv.Start(cmd.Context(), serveFlags.http); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}
	defer func() { _ = srv.Stop() }()
	fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on %s\n", srv.URL())
	logger.Info("MCP server listening on %s", srv.URL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	select {
	case <-sigChan:
	case <-cmd.Context().Done():
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
	return nil
}
