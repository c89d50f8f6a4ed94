package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mark3labs/monet/internal/session"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	json bool
}

var historyCmd = &cobra.Command{
	Use:   "history [SESSION]",
	Short: "List journaled sessions, or show one in detail",
	Long: `List journaled sessions, or show one in detail.

Sessions are replayed from the embedded event journal in the data directory.
The journal cannot be opened while another monet process is using it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("data-dir", ".monet", "Data directory for the event journal")
	historyCmd.Flags().BoolVar(&historyFlags.json, "json", false, "Print JSON instead of a table")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := cmd.Context()
	store, err := session.Open(ctx, filepath.Join(cfg.DataDir, "nats"))
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	w := cmd.OutOrStdout()
	if len(args) == 1 {
		state, err := store.LoadState(ctx, args[0])
		if err != nil {
			return err
		}
		if state.StartedAt.IsZero() {
			return fmt.Errorf("session %s not found", args[0])
		}
		if historyFlags.json {
			return printJSON(w, state)
		}
		printState(w, state)
		return nil
	}

	ids, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	states := make([]*session.State, 0, len(ids))
	for _, id := range ids {
		state, err := store.LoadState(ctx, id)
		if err != nil {
			return err
		}
		states = append(states, state)
	}
	sort.SliceStable(states, func(i, j int) bool { return states[i].StartedAt.Before(states[j].StartedAt) })

	if historyFlags.json {
		return printJSON(w, states)
	}
	if len(states) == 0 {
		fmt.Fprintln(w, "No sessions")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Session", "Started", "Status", "Iterations", "Layers", "Tokens in/out", "Prompt"})
	for _, st := range states {
		tw.AppendRow(table.Row{
			st.Session,
			st.StartedAt.Local().Format(time.DateTime),
			status(st),
			len(st.Iterations),
			len(st.Layers),
			fmt.Sprintf("%d/%d", st.Usage.InputTokens, st.Usage.OutputTokens),
			preview(st.Prompt, 40),
		})
	}
	tw.Render()
	return nil
}

func status(st *session.State) string {
	switch {
	case st.Failure != "":
		return "failed"
	case st.Complete:
		return "complete"
	case st.Phase != "":
		return st.Phase
	default:
		return "started"
	}
}

func printState(w io.Writer, st *session.State) {
	fmt.Fprintf(w, "Session:   %s\n", st.Session)
	fmt.Fprintf(w, "Prompt:    %s\n", st.Prompt)
	fmt.Fprintf(w, "Model:     %s/%s\n", st.Provider, st.Model)
	fmt.Fprintf(w, "Canvas:    %dx%d\n", st.Width, st.Height)
	fmt.Fprintf(w, "Output:    %s\n", st.OutputDir)
	fmt.Fprintf(w, "Status:    %s\n", status(st))
	if st.Failure != "" {
		fmt.Fprintf(w, "Failure:   %s\n", st.Failure)
	}
	if !st.EndedAt.IsZero() {
		fmt.Fprintf(w, "Duration:  %s\n", st.EndedAt.Sub(st.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(w, "Tokens:    %d in / %d out / %d cache read / %d cache write / %d thinking\n\n",
		st.Usage.InputTokens, st.Usage.OutputTokens, st.Usage.CacheReadTokens,
		st.Usage.CacheCreationTokens, st.Usage.ThinkingTokens)

	layers := make(map[int]*session.Layer)
	for _, l := range st.Layers {
		layers[l.Iteration] = l
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Iteration", "Layer", "Elements", "Defs", "Tokens in/out", "Note"})
	for _, n := range st.Notes {
		iter, layer, els, defs, tokens := "plan", "", "", "", ""
		if n.Iteration > 0 {
			iter = fmt.Sprint(n.Iteration)
			if l, ok := layers[n.Iteration]; ok {
				layer, els, defs = l.ID, fmt.Sprint(l.Elements), fmt.Sprint(l.Definitions)
			}
			for _, it := range st.Iterations {
				if it.Number == n.Iteration {
					tokens = fmt.Sprintf("%d/%d", it.Usage.InputTokens, it.Usage.OutputTokens)
				}
			}
		}
		tw.AppendRow(table.Row{iter, layer, els, defs, tokens, preview(n.Content, 48)})
	}
	tw.Render()

	if st.Statement != "" {
		fmt.Fprintf(w, "\n%s\n", st.Statement)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
