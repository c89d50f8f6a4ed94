package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mark3labs/monet/internal/artifacts"
	"github.com/mark3labs/monet/internal/markup"
	"github.com/mark3labs/monet/internal/tui"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect DIR",
	Short: "Summarize a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := artifacts.Load(args[0])
		if err != nil {
			return err
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff DIR FROM TO",
	Short: "Show how the canvas source changed between two iterations",
	Long: `Show how the canvas source changed between two iterations.

FROM and TO are iteration numbers or "final".`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := diffSources(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		if out == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No changes")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.Highlight(out, "canvas.diff"))
		return nil
	},
}

var showFlags struct {
	statement bool
	notes     bool
	plain     bool
}

var showCmd = &cobra.Command{
	Use:   "show DIR [ITERATION|final]",
	Short: "Print a saved canvas, its notes or its statement",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVarP(&showFlags.statement, "statement", "s", false, "Print the artist statement")
	showCmd.Flags().BoolVarP(&showFlags.notes, "notes", "n", false, "Print the artist log")
	showCmd.Flags().BoolVar(&showFlags.plain, "plain", false, "Disable syntax highlighting")
}

func runShow(cmd *cobra.Command, args []string) error {
	dir := args[0]
	w := cmd.OutOrStdout()

	switch {
	case showFlags.statement:
		rec, err := artifacts.Load(dir)
		if err != nil {
			return err
		}
		if rec.Statement == "" {
			return fmt.Errorf("no artist statement in %s", dir)
		}
		if showFlags.plain {
			fmt.Fprintln(w, rec.Statement)
		} else {
			fmt.Fprintln(w, tui.RenderMarkdown(rec.Statement, 80))
		}
		return nil

	case showFlags.notes:
		data, err := os.ReadFile(filepath.Join(dir, artifacts.LogFile))
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	ref := "final"
	if len(args) == 2 {
		ref = args[1]
	}
	source, err := readSource(dir, ref)
	if err != nil {
		return err
	}
	if showFlags.plain {
		_, err = io.WriteString(w, source)
		return err
	}
	fmt.Fprintln(w, tui.Highlight(source, "canvas.svg"))
	return nil
}

// readSource reads the canvas saved for ref: an iteration number or "final".
// A missing final.svg falls back to the newest snapshot.
func readSource(dir, ref string) (string, error) {
	if ref == "final" {
		data, err := os.ReadFile(filepath.Join(dir, artifacts.FinalSVG))
		if err == nil {
			return string(data), nil
		}
		snapshots, serr := artifacts.Snapshots(dir)
		if serr != nil || len(snapshots) == 0 {
			return "", fmt.Errorf("no canvas saved in %s", dir)
		}
		return artifacts.SnapshotSource(dir, snapshots[len(snapshots)-1])
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 {
		return "", fmt.Errorf("invalid iteration %q (use a number or \"final\")", ref)
	}
	return artifacts.SnapshotSource(dir, n)
}

func diffSources(dir, from, to string) (string, error) {
	a, err := readSource(dir, from)
	if err != nil {
		return "", err
	}
	b, err := readSource(dir, to)
	if err != nil {
		return "", err
	}
	return udiff.Unified(refName(from), refName(to), a, b), nil
}

func refName(ref string) string {
	if n, err := strconv.Atoi(ref); err == nil {
		return artifacts.SnapshotName(n) + ".svg"
	}
	return artifacts.FinalSVG
}

func printRecord(w io.Writer, rec *artifacts.Record) error {
	doc := rec.Document
	fmt.Fprintf(w, "Prompt:     %s\n", rec.Log.Prompt)
	if rec.Log.Session != "" {
		fmt.Fprintf(w, "Session:    %s\n", rec.Log.Session)
	}
	fmt.Fprintf(w, "Canvas:     %dx%d %s\n", doc.Width(), doc.Height(), doc.Background())
	source := rec.Source
	if source == "" {
		source = "blank"
	}
	fmt.Fprintf(w, "Source:     %s\n", source)
	fmt.Fprintf(w, "Layers:     %d (%d definitions)\n", len(doc.Layers()), len(doc.Definitions()))
	statement := "missing"
	if rec.Statement != "" {
		statement = "written"
	}
	fmt.Fprintf(w, "Statement:  %s\n\n", statement)

	elements := make(map[int]int)
	for _, l := range doc.Layers() {
		elements[l.Iteration] = markup.CountElements(l.Markup)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Iteration", "Elements", "In", "Out", "Cache read", "Cache write", "Thinking", "Notes"})
	var total [5]int
	for _, e := range rec.Log.Entries {
		iter := "plan"
		els := ""
		if e.Iteration > 0 {
			iter = strconv.Itoa(e.Iteration)
			if n, ok := elements[e.Iteration]; ok {
				els = strconv.Itoa(n)
			} else {
				els = "-"
			}
		}
		u := e.Usage
		tw.AppendRow(table.Row{iter, els, u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheCreationTokens, u.ThinkingTokens, preview(e.Text, 48)})
		for i, v := range []int{u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheCreationTokens, u.ThinkingTokens} {
			total[i] += v
		}
	}
	tw.AppendFooter(table.Row{"total", "", total[0], total[1], total[2], total[3], total[4], ""})
	tw.Render()
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
