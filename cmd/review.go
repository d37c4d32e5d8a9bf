package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sells-group/label-review/internal/fetcher"
	"github.com/sells-group/label-review/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review <request-file|url>...",
	Short: "Review applications from request files and record the results",
	Long:  "Each file or http(s) URL holds one application and its label extraction in YAML or JSON. Requests are reviewed concurrently and every result is stored, superseding earlier results for the same application.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reqs, err := loadRequests(ctx, newFetcher(), args)
		if err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			return printEvaluations(os.Stdout, reqs)
		}

		if err := cfg.Validate("review"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentApplications
		}

		svc := review.NewService(st, cfg.Review)
		outcomes, err := svc.ReviewBatch(ctx, reqs, concurrency)
		if err != nil {
			return err
		}

		formatOutcomes(os.Stdout, outcomes)
		if n := countFailed(outcomes); n > 0 {
			return eris.Errorf("review: %d of %d applications failed", n, len(outcomes))
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().Int("concurrency", 0, "max applications reviewed at once (default from config)")
	reviewCmd.Flags().Bool("dry-run", false, "evaluate and print without storing results")
	rootCmd.AddCommand(reviewCmd)
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		RateLimit:  rate.Limit(cfg.Fetch.RateLimit),
	})
}

func loadRequests(ctx context.Context, f fetcher.Fetcher, sources []string) ([]review.Request, error) {
	reqs := make([]review.Request, 0, len(sources))
	for _, p := range sources {
		var (
			req *review.Request
			err error
		)
		if fetcher.IsURL(p) {
			req, err = review.FetchRequest(ctx, f, p)
		} else {
			req, err = review.LoadRequest(p)
		}
		if err != nil {
			return nil, eris.Wrapf(err, "load %s", p)
		}
		reqs = append(reqs, *req)
	}
	return reqs, nil
}

// printEvaluations writes each application's evaluation as indented JSON.
func printEvaluations(out io.Writer, reqs []review.Request) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, req := range reqs {
		eval := review.Evaluate(req.Application, req.Extraction)
		if err := enc.Encode(struct {
			ApplicationID string `json:"application_id"`
			review.Evaluation
		}{req.Application.ID, eval}); err != nil {
			return eris.Wrap(err, "review: encode evaluation")
		}
	}
	return nil
}

// formatOutcomes writes a tabular summary of a batch review to w.
func formatOutcomes(out io.Writer, outcomes []review.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "APPLICATION\tDISPOSITION\tWINDOW\tDEADLINE\tCONFIDENCE\tERROR")
	_, _ = fmt.Fprintln(w, "-----------\t-----------\t------\t--------\t----------\t-----")

	for _, o := range outcomes {
		if o.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", o.ApplicationID, truncate(o.Err.Error(), 60))
			continue
		}
		r := o.Result
		window, deadline := "-", "-"
		if r.CorrectionWindowDays > 0 {
			window = fmt.Sprintf("%dd", r.CorrectionWindowDays)
		}
		if r.Deadline != nil {
			deadline = r.Deadline.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t\n",
			o.ApplicationID, r.Disposition, window, deadline, r.Confidence)
	}
	_ = w.Flush()
}

func countFailed(outcomes []review.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
