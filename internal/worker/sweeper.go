// Package worker runs the periodic parcel-job sweep: claimed jobs are matched
// against the parcel dataset when one is available and completed either way,
// so the queue always drains.
package worker

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seattlelisted/listing-cli/internal/model"
	"github.com/seattlelisted/listing-cli/internal/parcel"
	"github.com/seattlelisted/listing-cli/internal/store"
)

// ParcelMatcher finds the parcel for an address hint. A nil matcher means no
// parcel dataset is loaded; jobs then complete without a linkage.
type ParcelMatcher interface {
	Match(ctx context.Context, hint string) (*parcel.Parcel, error)
}

// Sweeper drains the parcel job queue in batches.
type Sweeper struct {
	store     store.Store
	matcher   ParcelMatcher
	batchSize int
}

// NewSweeper creates a Sweeper. matcher may be nil.
func NewSweeper(st store.Store, matcher ParcelMatcher, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Sweeper{store: st, matcher: matcher, batchSize: batchSize}
}

// RunOnce claims and completes one batch of queued jobs. A match failure
// fails only that job; the batch keeps going.
func (s *Sweeper) RunOnce(ctx context.Context) (done, failed int, err error) {
	jobs, err := s.store.ClaimParcelJobs(ctx, s.batchSize)
	if err != nil {
		return 0, 0, err
	}
	if len(jobs) == 0 {
		return 0, 0, nil
	}

	for _, job := range jobs {
		var parcelID *int64

		if s.matcher != nil {
			p, merr := s.matcher.Match(ctx, job.AddressHint)
			if merr != nil {
				zap.L().Warn("worker: parcel match failed",
					zap.Int64("job_id", job.ID), zap.Error(merr))
				if cerr := s.store.CompleteParcelJob(ctx, job.ID, model.ParcelJobFailed, nil); cerr != nil {
					return done, failed, cerr
				}
				failed++
				continue
			}
			if p != nil {
				parcelID = &p.ID
			}
		}

		if cerr := s.store.CompleteParcelJob(ctx, job.ID, model.ParcelJobDone, parcelID); cerr != nil {
			return done, failed, cerr
		}
		done++
	}

	zap.L().Info("worker: sweep complete",
		zap.Int("done", done), zap.Int("failed", failed))
	return done, failed, nil
}

// Run sweeps on the cron schedule until the context is canceled, then waits
// for any in-flight sweep to finish.
func (s *Sweeper) Run(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, _, err := s.RunOnce(ctx); err != nil {
			zap.L().Error("worker: sweep failed", zap.Error(err))
		}
	}); err != nil {
		return eris.Wrapf(err, "worker: invalid cron spec %q", spec)
	}

	zap.L().Info("worker: starting", zap.String("cron", spec))
	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}
