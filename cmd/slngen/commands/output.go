package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/slngen/slngen/pkg/engine"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// resultJSON adds the error messages GenerationResult leaves out of JSON.
type resultJSON struct {
	*engine.GenerationResult
	Errors []string `json:"errors,omitempty"`
}

func printResult(w io.Writer, res *engine.GenerationResult) error {
	if jsonOutput {
		out := resultJSON{GenerationResult: res}
		for _, err := range res.Errors.Sorted() {
			out.Errors = append(out.Errors, err.Error())
		}
		return printJSON(w, out)
	}

	if res.RunID != "" {
		fmt.Fprintf(w, "Run %s: %s\n", res.RunID, res.Status)
	} else {
		fmt.Fprintf(w, "Run: %s\n", res.Status)
	}

	if len(res.Artifacts) > 0 {
		fmt.Fprintln(w, "\nArtifacts:")
		tw := newTable(w)
		for _, a := range res.Artifacts {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", a.Status, a.Emitter, a.Path)
		}
		tw.Flush()
	}
	if len(res.Removed) > 0 {
		fmt.Fprintln(w, "\nRemoved:")
		for _, p := range res.Removed {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if len(res.Diagnostics) > 0 {
		fmt.Fprintln(w, "\nDiagnostics:")
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	if len(res.Findings) > 0 {
		fmt.Fprintln(w, "\nPolicy findings:")
		for _, f := range res.Findings {
			fmt.Fprintf(w, "  [%s] %s: %s\n", f.Severity, f.Policy, f.Message)
		}
	}
	if len(res.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, err := range res.Errors.Sorted() {
			fmt.Fprintf(w, "  %s\n", err)
		}
	}

	fmt.Fprintf(w, "\nCompleted in %s\n", res.Duration.Round(time.Millisecond))
	return nil
}

// generationError reports the first error of a failed run.
func generationError(res *engine.GenerationResult, err error) error {
	var list engine.ErrorList
	if !errors.As(err, &list) || len(list) == 0 {
		return err
	}
	first := list.Sorted()[0]
	status := engine.RunStatusFailed
	if res != nil {
		status = res.Status
	}
	if len(list) == 1 {
		return fmt.Errorf("generation %s: %w", status, first)
	}
	return fmt.Errorf("generation %s: %w (and %d more)", status, first, len(list)-1)
}

// declarationProblems lists the individual problems behind a load error.
func declarationProblems(err error) []error {
	var list engine.ErrorList
	if errors.As(err, &list) {
		return list
	}
	return []error{err}
}
