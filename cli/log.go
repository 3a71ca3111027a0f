package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolpack/tool"
)

// NewLogCmd creates the "log" subcommand.
func NewLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the execution history",
		Args:  cobra.NoArgs,
		RunE:  runLog,
	}
	cmd.Flags().Int("limit", 0, "Show only the most recent N runs")
	cmd.Flags().String("format", "table", "Output format: table | commands | json")
	return cmd
}

func runLog(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")
	if limit < 0 {
		return exitError(exitInputParse, "--limit must not be negative")
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	history := tool.NewHistory(env.cfg.HistoryPath)
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	switch format {
	case "commands":
		lines, err := history.Lines(ctx)
		if err != nil {
			return exitError(exitRuntime, "reading history: %v", err)
		}
		for _, line := range tail(lines, limit) {
			fmt.Fprintln(out, line)
		}
		return nil
	case "json", "table":
	default:
		return exitError(exitInputParse, "unknown format %q (use table, commands, or json)", format)
	}

	entries, err := history.Entries(ctx)
	if err != nil {
		return exitError(exitRuntime, "reading history: %v", err)
	}
	entries = tail(entries, limit)

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	writer := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSTARTED\tTOOL\tDURATION\tOUTPUT")
	for _, e := range entries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			shortID(e.ID),
			e.StartedAt.Local().Format(time.DateTime),
			e.Tool,
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
			truncate(e.Output, 40),
		)
	}
	return writer.Flush()
}

func tail[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate collapses whitespace and shortens s to n runes.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
