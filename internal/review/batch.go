package review

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/label-review/internal/model"
)

// Outcome is the per-application result of a batch review. Exactly one of
// Result and Err is set.
type Outcome struct {
	ApplicationID string                  `json:"application_id"`
	Result        *model.ValidationResult `json:"result,omitempty"`
	Err           error                   `json:"-"`
}

// ReviewBatch reviews requests concurrently. A failed application does not
// abort the batch; its error is reported in the matching Outcome. Outcomes
// are returned in request order.
func (s *Service) ReviewBatch(ctx context.Context, reqs []Request, concurrency int) ([]Outcome, error) {
	outcomes := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		zap.L().Info("no applications to review")
		return outcomes, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("reviewing batch",
		zap.Int("applications", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, req := range reqs {
		g.Go(func() error {
			log := zap.L().With(zap.String("application_id", req.Application.ID))
			outcomes[i].ApplicationID = req.Application.ID

			if err := gctx.Err(); err != nil {
				outcomes[i].Err = err
				failed.Add(1)
				return nil
			}

			result, err := s.Review(gctx, req)
			if err != nil {
				failed.Add(1)
				outcomes[i].Err = err
				log.Error("review failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			outcomes[i].Result = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, eris.Wrap(err, "review: batch")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return outcomes, nil
}
