package service

import (
	"context"
	"fmt"

	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
)

// EscrowService serves a job's delegated escrow agent.
type EscrowService struct {
	store      *repository.Store
	chain      ChainGateway
	reconciler *ReconcileService
	release    *PaymentRelease
	notifier   *NotificationService
	logger     *logger.Logger
}

// NewEscrowService creates a new escrow service
func NewEscrowService(store *repository.Store, chain ChainGateway, reconciler *ReconcileService, release *PaymentRelease, notifier *NotificationService, log *logger.Logger) *EscrowService {
	return &EscrowService{
		store:      store,
		chain:      chain,
		reconciler: reconciler,
		release:    release,
		notifier:   notifier,
		logger:     log,
	}
}

func (s *EscrowService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// ListEscrowJobs returns the reconciled jobs delegated to escrowAddr.
func (s *EscrowService) ListEscrowJobs(ctx context.Context, escrowAddr string) ([]domain.Job, error) {
	if domain.NormalizeAddress(escrowAddr) == "" {
		return nil, fmt.Errorf("%w: escrow_address is required", domain.ErrInvalidInput)
	}
	jobs, err := s.store.Jobs.List(ctx, domain.JobFilter{EscrowAddress: escrowAddr})
	if err != nil {
		return nil, err
	}
	return s.reconciler.ReconcileList(ctx, jobs), nil
}

// ReleaseAsEscrow prepares the payment release of a job both parties
// confirmed, with the escrow agent signing approveWork.
// Parameters:
//   - ctx: request context.
//   - jobID: job to release.
//   - escrowAddr: caller; must be the job's escrow agent.
// Returns:
//   - *ConfirmationResult: reconciled job plus release guidance.
//   - error: ErrNotFound, ErrUnauthorized, or ErrInvalidState before both confirmations.
func (s *EscrowService) ReleaseAsEscrow(ctx context.Context, jobID, escrowAddr string) (*ConfirmationResult, error) {
	ctx = logger.SetActor(ctx, domain.NormalizeAddress(escrowAddr))
	job, err := s.reconciler.ReconcileOnRead(ctx, jobID)
	if err != nil {
		return nil, err
	}
	ctx = logger.SetJobID(ctx, job.ID)
	if !domain.SameAddress(job.Escrow(), escrowAddr) {
		return nil, fmt.Errorf("%w: caller is not the job's escrow agent", domain.ErrUnauthorized)
	}
	if !job.BothConfirmed() {
		return nil, fmt.Errorf("%w: both parties must confirm completion first", domain.ErrInvalidState)
	}

	result := &ConfirmationResult{Job: job, BothConfirmed: true}
	result.apply(s.release.Run(ctx, job, escrowAddr))
	s.log(ctx).WithField("needed_action", string(result.NeededAction)).Info("Escrow agent release prepared")
	return result, nil
}

// RevertAsEscrow refunds a job no freelancer has engaged with, when the
// client allowed the escrow agent to do so. The job ends refunded.
func (s *EscrowService) RevertAsEscrow(ctx context.Context, jobID, escrowAddr string) (*JobActionResult, error) {
	ctx = logger.SetJobID(ctx, jobID)
	ctx = logger.SetActor(ctx, domain.NormalizeAddress(escrowAddr))

	var job *domain.Job
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		j, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(j.Escrow(), escrowAddr) {
			return fmt.Errorf("%w: caller is not the job's escrow agent", domain.ErrUnauthorized)
		}
		if !j.AllowEscrowRevert {
			return fmt.Errorf("%w: the client did not allow escrow revert", domain.ErrInvalidState)
		}
		ApplyInvariants(j)
		if j.HasFreelancer() || j.Status != domain.JobStatusOpen {
			return fmt.Errorf("%w: a %s job with an engaged freelancer cannot be reverted", domain.ErrInvalidState, j.Status)
		}
		j.Status = domain.JobStatusRefunded
		job = j
		return r.Jobs.Save(ctx, j)
	})
	if err != nil {
		return nil, err
	}

	result := &JobActionResult{Job: job}
	if job.OnChain() && s.chain != nil {
		tx, err := s.chain.BuildTransaction(ctx, domain.TxCancelJob, domain.TxArgs{JobID: *job.BlockchainJobID}, escrowAddr)
		if err != nil {
			s.log(ctx).WithError(err).Warn("Failed to build escrow cancelJob transaction")
			result.BlockchainError = err.Error()
		} else {
			result.Transaction = tx
		}
	}
	s.notifier.Notify(ctx, domain.Notification{
		UserAddress:  job.ClientAddress,
		Type:         domain.NotificationJobCancelled,
		Title:        "Job refunded",
		Message:      fmt.Sprintf("The escrow agent reverted %q", job.Title),
		RelatedJobID: job.ID,
	})
	s.log(ctx).Info("Job reverted by escrow agent")
	return result, nil
}
