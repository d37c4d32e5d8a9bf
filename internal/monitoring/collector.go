// Package monitoring summarises recent review activity for operators.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/label-review/internal/model"
	"github.com/sells-group/label-review/internal/store"
)

// maxSnapshotResults caps how many results a single snapshot scans.
const maxSnapshotResults = 10000

// MaxLookbackHours is the widest lookback window a snapshot honours; larger
// windows are clamped to it.
const MaxLookbackHours = 100 * 365 * 24

// Snapshot holds a point-in-time view of review outcomes.
type Snapshot struct {
	// Current (non-superseded) results within the lookback window.
	Total                 int `json:"total"`
	Approved              int `json:"approved"`
	ConditionallyApproved int `json:"conditionally_approved"`
	NeedsCorrection       int `json:"needs_correction"`
	Rejected              int `json:"rejected"`

	RejectionRate float64 `json:"rejection_rate"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Results whose correction deadline has already passed.
	OverdueCorrections int `json:"overdue_corrections"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers review metrics from the result store.
type Collector struct {
	store store.Store
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. A non-positive
// lookback covers every stored result.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	lookbackHours = min(lookbackHours, MaxLookbackHours)
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	filter := store.ResultFilter{
		ExcludeSuperseded: true,
		Limit:             maxSnapshotResults,
	}
	if lookbackHours > 0 {
		filter.CreatedAfter = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	results, err := c.store.ListResults(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list results")
	}

	var totalConfidence int
	for _, r := range results {
		snap.Total++
		totalConfidence += r.Confidence

		switch r.Disposition {
		case model.DispositionApproved:
			snap.Approved++
		case model.DispositionConditionallyApproved:
			snap.ConditionallyApproved++
		case model.DispositionNeedsCorrection:
			snap.NeedsCorrection++
		case model.DispositionRejected:
			snap.Rejected++
		}

		if r.Deadline != nil && r.Deadline.Before(now) {
			snap.OverdueCorrections++
		}
	}

	if snap.Total > 0 {
		snap.RejectionRate = float64(snap.Rejected) / float64(snap.Total)
		snap.AvgConfidence = float64(totalConfidence) / float64(snap.Total)
	}

	return snap, nil
}
