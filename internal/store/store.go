package store

import (
	"context"
	"time"

	"github.com/sells-group/label-review/internal/model"
)

// ResultFilter specifies criteria for listing validation results.
type ResultFilter struct {
	ApplicationID     string    `json:"application_id,omitempty"`
	ExcludeSuperseded bool      `json:"exclude_superseded,omitempty"`
	CreatedAfter      time.Time `json:"created_after,omitempty"`
	Limit             int       `json:"limit,omitempty"`
	Offset            int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for validation results.
type Store interface {
	// SaveResult appends r, assigning ID and CreatedAt when unset, and marks
	// every earlier result for the same application superseded.
	SaveResult(ctx context.Context, r *model.ValidationResult) error
	// LatestResult returns the current result for an application, or nil
	// when none has been stored.
	LatestResult(ctx context.Context, applicationID string) (*model.ValidationResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.ValidationResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(filter ResultFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}
