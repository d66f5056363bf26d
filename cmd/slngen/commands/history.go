package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/slngen/slngen/pkg/stores"
)

type runJSON struct {
	*stores.Run
	Artifacts []*stores.Artifact `json:"artifacts,omitempty"`
}

func newHistoryCommand() *cobra.Command {
	var (
		statePath string
		runID     string
		limit     int
		prune     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded generation runs",
		Long: `List the generation runs recorded in the history store, newest first.

With --run the artifacts of one run are listed with their status and
content hash. --prune keeps only the most recent runs.`,
		Example: `  # Last ten runs
  slngen history

  # Artifacts of one run
  slngen history --run 5f0c7a3e-...

  # Keep the 20 most recent runs
  slngen history --prune 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig()
			if err != nil {
				return err
			}
			if statePath != "" {
				cfg.StatePath = statePath
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(cfg.StatePath); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(out, "No generation history at %s\n", cfg.StatePath)
				return nil
			}

			store, err := stores.Open(cmd.Context(), cfg.StatePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if prune > 0 {
				removed, err := store.PruneRuns(cmd.Context(), prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d run(s)\n", removed)
				return nil
			}

			if runID != "" {
				run, err := store.GetRun(cmd.Context(), runID)
				if err != nil {
					if errors.Is(err, stores.ErrNotFound) {
						return fmt.Errorf("run %s not found", runID)
					}
					return err
				}
				artifacts, err := store.ListArtifacts(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, runJSON{Run: run, Artifacts: artifacts})
				}
				printRun(out, run, artifacts)
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tSTATUS\tERRORS\tSTARTED\tDURATION\tSOLUTIONS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					r.ID, r.Status, r.ErrorCount, r.StartedAt.Local().Format(time.DateTime),
					runDuration(r), strings.Join(r.Solutions, ","))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&statePath, "state", "", "history database path (default from config)")
	cmd.Flags().StringVar(&runID, "run", "", "show the artifacts of one run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to list")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but the N most recent runs")

	return cmd
}

func printRun(w io.Writer, run *stores.Run, artifacts []*stores.Artifact) {
	fmt.Fprintf(w, "Run %s: %s\n", run.ID, run.Status)
	fmt.Fprintf(w, "  output root: %s\n", run.OutputRoot)
	fmt.Fprintf(w, "  solutions:   %s\n", strings.Join(run.Solutions, ", "))
	fmt.Fprintf(w, "  started:     %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  duration:    %s\n", runDuration(run))
	fmt.Fprintf(w, "  errors:      %d\n", run.ErrorCount)
	if len(artifacts) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintln(tw, "STATUS\tEMITTER\tTARGET\tSHA256\tPATH")
	for _, a := range artifacts {
		sum := a.SHA256
		if len(sum) > 12 {
			sum = sum[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Status, a.Emitter, a.Target, sum, a.Path)
	}
	tw.Flush()
}

func runDuration(r *stores.Run) string {
	if r.CompletedAt == nil {
		return "-"
	}
	return r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
