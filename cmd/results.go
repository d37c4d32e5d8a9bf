package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/label-review/internal/model"
	"github.com/sells-group/label-review/internal/monitoring"
	"github.com/sells-group/label-review/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect stored validation results",
}

// -- results list --

var resultsListCmd = &cobra.Command{
	Use:   "list [application-id]",
	Short: "List validation results, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		current, _ := cmd.Flags().GetBool("current")

		filter := store.ResultFilter{Limit: limit, ExcludeSuperseded: current}
		if len(args) == 1 {
			filter.ApplicationID = args[0]
		}

		results, err := st.ListResults(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "results list")
		}

		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No results found.")
			return nil
		}

		formatResultsList(os.Stdout, results)
		return nil
	},
}

// -- results show --

var resultsShowCmd = &cobra.Command{
	Use:   "show <application-id>",
	Short: "Show the current result for an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		result, err := st.LatestResult(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "results show")
		}
		if result == nil {
			return eris.Errorf("no results for application %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// -- results stats --

var resultsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise recent dispositions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		asJSON, _ := cmd.Flags().GetBool("json")

		snap, err := monitoring.NewCollector(st).Collect(ctx, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "results stats")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	resultsStatsCmd.Flags().Duration("since", 24*time.Hour, "lookback window (0 for all results)")
	resultsStatsCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	resultsCmd.AddCommand(resultsStatsCmd)

	resultsListCmd.Flags().Int("limit", 50, "max number of results to display")
	resultsListCmd.Flags().Bool("current", false, "hide superseded results")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	rootCmd.AddCommand(resultsCmd)
}

// formatResultsList writes a tabular list of results to w.
func formatResultsList(out io.Writer, results []model.ValidationResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAPPLICATION\tCATEGORY\tDISPOSITION\tDEADLINE\tCONF\tCREATED\tCURRENT")
	_, _ = fmt.Fprintln(w, "--\t-----------\t--------\t-----------\t--------\t----\t-------\t-------")

	for _, r := range results {
		deadline := "-"
		if r.Deadline != nil {
			deadline = r.Deadline.Format("2006-01-02")
		}
		current := "yes"
		if r.Superseded {
			current = "no"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			truncate(r.ApplicationID, 30),
			r.Category,
			r.Disposition,
			deadline,
			r.Confidence,
			r.CreatedAt.Format("2006-01-02 15:04"),
			current,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatSnapshot writes a short disposition summary to w.
func formatSnapshot(out io.Writer, snap *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	window := "all time"
	if snap.LookbackHours > 0 {
		window = fmt.Sprintf("last %dh", snap.LookbackHours)
	}
	_, _ = fmt.Fprintf(w, "Window:\t%s\n", window)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", snap.Total)
	_, _ = fmt.Fprintf(w, "Approved:\t%d\n", snap.Approved)
	_, _ = fmt.Fprintf(w, "Conditionally approved:\t%d\n", snap.ConditionallyApproved)
	_, _ = fmt.Fprintf(w, "Needs correction:\t%d\n", snap.NeedsCorrection)
	_, _ = fmt.Fprintf(w, "Rejected:\t%d (%.1f%%)\n", snap.Rejected, snap.RejectionRate*100)
	_, _ = fmt.Fprintf(w, "Avg confidence:\t%.1f\n", snap.AvgConfidence)
	_, _ = fmt.Fprintf(w, "Overdue corrections:\t%d\n", snap.OverdueCorrections)
	_ = w.Flush()
}
