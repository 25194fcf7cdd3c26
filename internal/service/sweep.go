package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
)

// SweepService walks stored jobs in batches and reconciles each one, so jobs
// nobody reads still converge on the chain state.
type SweepService struct {
	store      *repository.Store
	reconciler *ReconcileService
	acceptance *AcceptanceService
	logger     *logger.Logger
	workers    int
	batchSize  int
}

// SweepConfig holds configuration for the sweep service
type SweepConfig struct {
	Workers   int
	BatchSize int
}

// NewSweepService creates a new sweep service
func NewSweepService(
	store *repository.Store,
	reconciler *ReconcileService,
	acceptance *AcceptanceService,
	log *logger.Logger,
	cfg *SweepConfig,
) *SweepService {
	workers, batch := 4, 100
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			batch = cfg.BatchSize
		}
	}
	return &SweepService{
		store:      store,
		reconciler: reconciler,
		acceptance: acceptance,
		logger:     log,
		workers:    workers,
		batchSize:  batch,
	}
}

func (s *SweepService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// SweepStats holds statistics for a sweep run
type SweepStats struct {
	TotalJobs     int64     `json:"total_jobs"`
	CorrectedJobs int64     `json:"corrected_jobs"`
	Corrections   int64     `json:"corrections"`
	RepairedJobs  int64     `json:"repaired_jobs"`
	FailedJobs    int64     `json:"failed_jobs"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// SweepOptions narrows a sweep.
type SweepOptions struct {
	Limit       int  // zero sweeps every job
	OnChainOnly bool // skip jobs never linked to the contract
	Repair      bool // also restore assignments from accepted proposals
}

type sweepResult struct {
	jobID       string
	corrections int
	repaired    bool
	err         error
}

// Sweep reconciles jobs page by page until the store or the limit runs out.
// Per-job failures are counted, not returned.
func (s *SweepService) Sweep(ctx context.Context, opts SweepOptions) (*SweepStats, error) {
	stats := &SweepStats{StartTime: time.Now()}

	s.log(ctx).WithFields(logger.Fields{
		"limit":         opts.Limit,
		"on_chain_only": opts.OnChainOnly,
		"repair":        opts.Repair,
	}).Info("Starting reconciliation sweep")

	jobsChan := make(chan domain.Job, s.workers*2)
	resultsChan := make(chan sweepResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, jobsChan, resultsChan, opts)
		}()
	}

	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			switch {
			case result.err != nil:
				atomic.AddInt64(&stats.FailedJobs, 1)
				s.log(ctx).WithField(logger.FieldJobID, result.jobID).WithError(result.err).Error("Failed to reconcile job")
			case result.corrections > 0:
				atomic.AddInt64(&stats.CorrectedJobs, 1)
				atomic.AddInt64(&stats.Corrections, int64(result.corrections))
			}
			if result.repaired {
				atomic.AddInt64(&stats.RepairedJobs, 1)
			}
		}
		close(done)
	}()

	var fetchErr error
	offset := 0
fetch:
	for ctx.Err() == nil {
		batch := s.batchSize
		if opts.Limit > 0 {
			remaining := opts.Limit - offset
			if remaining <= 0 {
				break
			}
			batch = min(batch, remaining)
		}

		jobs, err := s.store.Jobs.List(ctx, domain.JobFilter{OnChainOnly: opts.OnChainOnly, Limit: batch, Offset: offset})
		if err != nil {
			fetchErr = err
			s.log(ctx).WithError(err).Error("Failed to fetch job batch")
			break
		}
		if len(jobs) == 0 {
			break
		}
		atomic.AddInt64(&stats.TotalJobs, int64(len(jobs)))
		offset += len(jobs)

		for _, job := range jobs {
			select {
			case jobsChan <- job:
			case <-ctx.Done():
				break fetch
			}
		}
		if len(jobs) < batch {
			break
		}
	}

	close(jobsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()
	logger.With(logger.Fields{
		logger.FieldCount:       stats.TotalJobs,
		logger.FieldCorrections: stats.Corrections,
		logger.FieldDurationMs:  stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	}).Info(ctx, "Reconciliation sweep completed: corrected=%d, repaired=%d, failed=%d",
		stats.CorrectedJobs, stats.RepairedJobs, stats.FailedJobs)

	return stats, fetchErr
}

func (s *SweepService) worker(ctx context.Context, jobs <-chan domain.Job, results chan<- sweepResult, opts SweepOptions) {
	for job := range jobs {
		if ctx.Err() != nil {
			results <- sweepResult{jobID: job.ID, err: ctx.Err()}
			continue
		}
		result := sweepResult{jobID: job.ID}

		if opts.Repair && !job.HasFreelancer() && s.acceptance != nil {
			repaired, err := s.acceptance.RepairAssignment(ctx, job.ID)
			if err != nil {
				result.err = err
				results <- result
				continue
			}
			result.repaired = repaired.HasFreelancer()
		}

		_, corrections, err := s.reconciler.ReconcileWithReport(ctx, job.ID)
		result.corrections = len(corrections)
		result.err = err
		results <- result
	}
}
