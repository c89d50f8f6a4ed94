package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/x/editor"
	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/mark3labs/monet/internal/config"
	"github.com/mark3labs/monet/internal/orchestrator"
	"github.com/mark3labs/monet/internal/provider"
	"github.com/mark3labs/monet/internal/render"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var drawFlags struct {
	promptFile string
	edit       bool
	outDir     string
}

var drawCmd = &cobra.Command{
	Use:   "draw [prompt]",
	Short: "Draw a new piece from a prompt",
	Long: `Draw a new piece from a prompt.

The model first plans the piece, then draws it one layer per iteration while
looking at the rendered canvas, and finally writes an artist statement.
Artifacts are written to <output>/<prompt-slug>-<timestamp>/ unless --out is
given.

Configuration is loaded from multiple sources with the following precedence:
  CLI flags > Environment variables (MONET_*) > Project config > Global config > Defaults

Project config: ./monet.yml
Global config: ~/.config/monet/monet.yml

Press q to finish early (the statement is still written), ctrl+c twice to abort.`,
	Args: cobra.ArbitraryArgs,
	RunE: runDraw,
}

// flagKeys maps draw flags to config keys.
var flagKeys = map[string]string{
	"provider":           "provider",
	"model":              "model",
	"base-url":           "base_url",
	"width":              "width",
	"height":             "height",
	"background":         "background",
	"iterations":         "max_iterations",
	"max-empty-turns":    "max_empty_turns",
	"thinking-budget":    "plan_thinking_budget",
	"max-output-tokens":  "max_output_tokens",
	"export-scale":       "export_scale",
	"renderer":           "renderer",
	"resvg":              "resvg_path",
	"output":             "output_dir",
	"data-dir":           "data_dir",
	"template":           "template",
	"extra-instructions": "extra_instructions",
	"headless":           "headless",
	"journal":            "journal",
	"log-level":          "log_level",
	"log-file":           "log_file",
}

func init() {
	f := drawCmd.Flags()
	f.StringVarP(&drawFlags.promptFile, "prompt-file", "f", "", "Read the prompt from a file")
	f.BoolVarP(&drawFlags.edit, "edit", "E", false, "Write the prompt in $EDITOR")
	f.StringVar(&drawFlags.outDir, "out", "", "Exact artifact directory (default: <output>/<slug>-<timestamp>)")

	f.StringP("provider", "p", "anthropic", "Model backend: anthropic, gemini or openai")
	f.StringP("model", "m", "", "Model name (default: the backend's default)")
	f.String("base-url", "", "Override the backend's API base URL")
	f.Int("width", 800, "Canvas width in pixels")
	f.Int("height", 600, "Canvas height in pixels")
	f.String("background", "#FFFFFF", "Canvas background color")
	f.IntP("iterations", "i", 25, "Maximum drawing iterations")
	f.Int("max-empty-turns", 3, "Consecutive turns without drawing before finishing")
	f.Int("thinking-budget", 16000, "Reasoning token budget for the planning turn")
	f.Int("max-output-tokens", 8192, "Output token limit per turn")
	f.Float64("export-scale", 2, "Scale of final.png")
	f.String("renderer", "auto", "Rasterizer: auto, resvg or native")
	f.String("resvg", "", "Path to the resvg binary")
	f.StringP("output", "o", "output", "Parent directory for session artifacts")
	f.String("data-dir", ".monet", "Data directory for the event journal")
	f.StringP("template", "t", "", "Custom drawing prompt template")
	f.StringP("extra-instructions", "e", "", "Extra instructions appended to the drawing prompt")
	f.Bool("headless", false, "Run without TUI (progress on stdout)")
	f.Bool("journal", true, "Record the session in the embedded event journal")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("log-file", "", "Write logs to this file")
}

// loadConfig loads configuration with cmd's changed flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.LoadWith(func(v *viper.Viper) error {
		for name, key := range flagKeys {
			flag := cmd.Flags().Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
		return nil
	})
}

func runDraw(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyLogging(cfg); err != nil {
		return err
	}

	prompt, err := readPrompt(args)
	if err != nil {
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

	outDir := drawFlags.outDir
	if outDir == "" {
		outDir = filepath.Join(cfg.OutputDir, artifacts.DirName(prompt, time.Now()))
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Prompt:        prompt,
		OutputDir:     outDir,
		DataDir:       cfg.DataDir,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Background:    cfg.Background,
		MaxIterations: cfg.MaxIterations,
		Engine:        engineConfig(cfg),
		Headless:      cfg.Headless,
		Journal:       cfg.Journal,
	}, p, r)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer func() {
		if err := orch.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	// First signal finishes after the current turn, the second aborts.
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; !ok {
			return
		}
		fmt.Println("\nFinishing after the current turn (interrupt again to abort)...")
		orch.RequestStop()
		if _, ok := <-sigChan; !ok {
			return
		}
		fmt.Println("\nAborting...")
		orch.Cancel()
	}()

	runErr := orch.Run()
	orch.Wait()
	if runErr != nil {
		return fmt.Errorf("drawing failed: %w", runErr)
	}
	if cfg.Headless {
		fmt.Printf("\nArtifacts written to %s\n", outDir)
	}
	return nil
}

func engineConfig(cfg *config.Config) orchestrator.EngineConfig {
	return orchestrator.EngineConfig{
		MaxEmptyTurns:      cfg.MaxEmptyTurns,
		CacheWindow:        cfg.CacheWindow,
		CacheBreakpoints:   cfg.CacheBreakpoints,
		PlanThinkingBudget: cfg.PlanThinkingBudget,
		MaxOutputTokens:    cfg.MaxOutputTokens,
		ExportScale:        cfg.ExportScale,
		TemplatePath:       cfg.Template,
		ExtraInstructions:  cfg.ExtraInstructions,
	}
}

// readPrompt takes the prompt from the arguments, --prompt-file or $EDITOR,
// in that order of preference.
func readPrompt(args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if drawFlags.promptFile != "" {
		data, err := os.ReadFile(drawFlags.promptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if drawFlags.edit {
		edited, err := editPrompt(prompt)
		if err != nil {
			return "", err
		}
		prompt = edited
	}
	if prompt == "" {
		return "", fmt.Errorf("no prompt given\n\nPass it as an argument, with --prompt-file, or write it with --edit")
	}
	return prompt, nil
}

const editorHint = "# Describe the piece to draw. Lines starting with # are ignored.\n"

func editPrompt(initial string) (string, error) {
	tmpfile, err := os.CreateTemp("", "monet-prompt-*.md")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.WriteString(editorHint + initial); err != nil {
		_ = tmpfile.Close()
		return "", err
	}
	_ = tmpfile.Close()

	cmd, err := editor.Command("monet", tmpfile.Name())
	if err != nil {
		return "", fmt.Errorf("failed to open editor: %w", err)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor exited with error: %w", err)
	}

	data, err := os.ReadFile(tmpfile.Name())
	if err != nil {
		return "", err
	}
	return stripComments(string(data)), nil
}

func stripComments(s string) string {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
