package service

import (
	"context"
	"time"

	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Correction records one persisted field rewritten by reconciliation.
type Correction struct {
	Field  string `json:"field"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Correction reasons.
const (
	ReasonChainCompleted     = "chain_completed"
	ReasonChainStatus        = "chain_status"
	ReasonFreelancerBackfill = "freelancer_backfill"
	ReasonInvariant          = "invariant"
)

// Reconcile merges a persisted job with its on-chain mirror and returns the
// corrected job plus the corrections applied. It is pure: nothing is read or
// written. A nil mirror only re-derives the status invariants.
//
// With a freelancer assigned the persisted status is authoritative and the
// chain can only advance it to completed. Without one the chain status wins,
// and a chain freelancer is adopted. A persisted freelancer is never replaced,
// and a persisted cancelled or refunded job is never reopened.
func Reconcile(job domain.Job, mirror *domain.ChainJob) (domain.Job, []Correction) {
	next := job
	reason := ReasonInvariant

	// A local cancel or escrow revert leads the chain until its unsigned
	// cancelJob is mined, and the contract reports a revert as cancelled.
	if job.Status == domain.JobStatusCancelled || job.Status == domain.JobStatusRefunded {
		mirror = nil
	}

	if mirror != nil {
		if chainStatus, ok := mirror.Status.JobStatus(); ok {
			if job.HasFreelancer() {
				if chainStatus == domain.JobStatusCompleted {
					next.Status = domain.JobStatusCompleted
					reason = ReasonChainCompleted
				}
			} else {
				next.Status = chainStatus
				reason = ReasonChainStatus
				if mirror.HasFreelancer() {
					next.SetFreelancer(mirror.Freelancer)
					if next.Status == domain.JobStatusOpen {
						next.Status = domain.JobStatusInProgress
						reason = ReasonFreelancerBackfill
					}
				}
			}
		}
	}

	if deriveStatus(&next) {
		reason = ReasonInvariant
	}

	var corrections []Correction
	if next.Freelancer() != job.Freelancer() {
		corrections = append(corrections, Correction{
			Field:  "freelancer_address",
			From:   job.Freelancer(),
			To:     next.Freelancer(),
			Reason: ReasonFreelancerBackfill,
		})
	}
	if next.Status != job.Status {
		corrections = append(corrections, Correction{
			Field:  "status",
			From:   string(job.Status),
			To:     string(next.Status),
			Reason: reason,
		})
	}
	return next, corrections
}

// ApplyInvariants re-derives the status a job's assignment and confirmations
// imply. Every mutating path calls it before writing.
func ApplyInvariants(job *domain.Job) []Correction {
	from := job.Status
	if !deriveStatus(job) {
		return nil
	}
	return []Correction{{Field: "status", From: string(from), To: string(job.Status), Reason: ReasonInvariant}}
}

// deriveStatus enforces: an assigned or confirmed job is never open, and a
// job both parties confirmed is completed once it is on the forward path.
func deriveStatus(job *domain.Job) bool {
	before := job.Status
	if job.Status == domain.JobStatusOpen && (job.HasFreelancer() || job.AnyConfirmed()) {
		job.Status = domain.JobStatusInProgress
	}
	if job.BothConfirmed() && job.Status.AtLeast(domain.JobStatusOpen) {
		job.Status = domain.JobStatusCompleted
	}
	return job.Status != before
}

// freelancerDiverges reports whether the chain names a different freelancer
// than the one persisted.
func freelancerDiverges(job *domain.Job, mirror *domain.ChainJob) bool {
	return mirror != nil && job.HasFreelancer() && mirror.HasFreelancer() &&
		!domain.SameAddress(job.Freelancer(), mirror.Freelancer)
}

// ReconcileService applies Reconcile to stored jobs and persists the result.
type ReconcileService struct {
	store       *repository.Store
	chain       ChainGateway
	logger      *logger.Logger
	concurrency int
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(store *repository.Store, chain ChainGateway, log *logger.Logger, concurrency int) *ReconcileService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ReconcileService{
		store:       store,
		chain:       chain,
		logger:      log,
		concurrency: concurrency,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ReconcileService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// ReconcileOnRead loads a job, merges it with its chain mirror and persists
// any corrections. An unreachable chain never fails the read.
// Parameters:
//   - ctx: request context.
//   - jobID: job to read.
// Returns:
//   - *domain.Job: the authoritative job view.
//   - error: domain.ErrNotFound, or a store failure.
func (s *ReconcileService) ReconcileOnRead(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.store.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job, _, err = s.reconcileJob(ctx, job)
	return job, err
}

// ReconcileWithReport is ReconcileOnRead that also returns the corrections applied.
func (s *ReconcileService) ReconcileWithReport(ctx context.Context, jobID string) (*domain.Job, []Correction, error) {
	job, err := s.store.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return s.reconcileJob(ctx, job)
}

// ReconcileList reconciles already loaded jobs concurrently. A job whose
// reconciliation fails is returned as loaded.
func (s *ReconcileService) ReconcileList(ctx context.Context, jobs []domain.Job) []domain.Job {
	out := make([]domain.Job, len(jobs))
	copy(out, jobs)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range jobs {
		g.Go(func() error {
			job := jobs[i]
			fixed, _, err := s.reconcileJob(ctx, &job)
			if err != nil {
				s.log(ctx).WithField(logger.FieldJobID, job.ID).WithError(err).Warn("Reconcile failed, serving persisted view")
				return nil
			}
			out[i] = *fixed
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Mirror fetches the chain view of a job. It returns nil whenever the job is
// not on chain or the read did not succeed.
func (s *ReconcileService) Mirror(ctx context.Context, job *domain.Job) *domain.ChainJob {
	if !job.OnChain() || s.chain == nil {
		return nil
	}
	ctx = logger.SetChainJobID(ctx, *job.BlockchainJobID)
	res := s.chain.JobMirror(ctx, *job.BlockchainJobID)
	mirrorReads.WithLabelValues(string(res.State)).Inc()
	if res.State != domain.MirrorOK {
		s.log(ctx).WithField(logger.FieldStatus, string(res.State)).WithError(res.Err).Warn("Chain mirror unavailable, using persisted job")
		return nil
	}
	return res.Mirror()
}

func (s *ReconcileService) reconcileJob(ctx context.Context, job *domain.Job) (*domain.Job, []Correction, error) {
	ctx = logger.SetJobID(ctx, job.ID)
	start := time.Now()

	mirror := s.Mirror(ctx, job)
	if freelancerDiverges(job, mirror) {
		freelancerDivergence.Inc()
		s.log(ctx).WithFields(logger.Fields{
			"persisted_freelancer": job.Freelancer(),
			"chain_freelancer":     mirror.Freelancer,
		}).Warn("Chain reports a different freelancer; keeping persisted assignment")
	}

	if _, corrections := Reconcile(*job, mirror); len(corrections) == 0 {
		return job, nil, nil
	}

	// Re-read under lock so concurrent writers converge on the same fixed point.
	var (
		saved   *domain.Job
		applied []Correction
	)
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		locked, err := r.Jobs.GetForUpdate(ctx, job.ID)
		if err != nil {
			return err
		}
		fixed, corrections := Reconcile(*locked, mirror)
		if len(corrections) == 0 {
			saved = locked
			return nil
		}
		if !locked.HasFreelancer() && fixed.HasFreelancer() {
			if _, err := r.Users.EnsureExists(ctx, fixed.Freelancer()); err != nil {
				return err
			}
		}
		if err := r.Jobs.Save(ctx, &fixed); err != nil {
			return err
		}
		saved, applied = &fixed, corrections
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, c := range applied {
		reconcileCorrections.WithLabelValues(c.Field, c.Reason).Inc()
	}
	if len(applied) > 0 {
		logger.With(nil).Corrections(len(applied)).Since(start).Info(ctx, "Reconciled job: %+v", applied)
	}
	return saved, applied, nil
}
