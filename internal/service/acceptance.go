package service

import (
	"context"
	"fmt"

	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
)

// AcceptResult is an accepted proposal, its job, and the optional acceptJob
// transaction for the freelancer to sign.
type AcceptResult struct {
	Job         *domain.Job                   `json:"job"`
	Proposal    *domain.Proposal              `json:"proposal"`
	Transaction *domain.TransactionDescriptor `json:"blockchain_transaction,omitempty"`
}

// AcceptanceService assigns freelancers to jobs.
type AcceptanceService struct {
	store    *repository.Store
	chain    ChainGateway
	notifier *NotificationService
	logger   *logger.Logger
}

// NewAcceptanceService creates a new acceptance service
func NewAcceptanceService(store *repository.Store, chain ChainGateway, notifier *NotificationService, log *logger.Logger) *AcceptanceService {
	return &AcceptanceService{
		store:    store,
		chain:    chain,
		notifier: notifier,
		logger:   log,
	}
}

func (s *AcceptanceService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// AcceptProposal accepts a proposal on behalf of the job's client and assigns
// its freelancer, replacing any freelancer already assigned. Other pending
// proposals for the job are left as they are.
// Parameters:
//   - ctx: request context.
//   - proposalID: proposal to accept.
//   - clientAddr: caller; must be the job's client.
// Returns:
//   - *AcceptResult: committed job and proposal, plus an acceptJob tx when the
//     job is on chain and the build succeeded.
//   - error: ErrNotFound, ErrUnauthorized, or ErrInvalidState for a job
//     that is finished or disputed.
func (s *AcceptanceService) AcceptProposal(ctx context.Context, proposalID, clientAddr string) (*AcceptResult, error) {
	ctx = logger.SetProposalID(ctx, proposalID)
	ctx = logger.SetActor(ctx, domain.NormalizeAddress(clientAddr))

	result := &AcceptResult{}
	var previous string
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		proposal, err := r.Proposals.Get(ctx, proposalID)
		if err != nil {
			return err
		}
		job, err := r.Jobs.GetForUpdate(ctx, proposal.JobID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(job.ClientAddress, clientAddr) {
			return fmt.Errorf("%w: only the job's client can accept proposals", domain.ErrUnauthorized)
		}
		if job.Status.Terminal() || job.Status == domain.JobStatusDisputed {
			return fmt.Errorf("%w: cannot assign a freelancer to a %s job", domain.ErrInvalidState, job.Status)
		}

		proposal.Status = domain.ProposalStatusAccepted
		if err := r.Proposals.Save(ctx, proposal); err != nil {
			return err
		}
		previous = job.Freelancer()
		if err := assign(ctx, r, job, proposal.FreelancerAddress, true); err != nil {
			return err
		}
		result.Job, result.Proposal = job, proposal
		return nil
	})
	if err != nil {
		return nil, err
	}

	job := result.Job
	ctx = logger.SetJobID(ctx, job.ID)
	if previous != "" && !domain.SameAddress(previous, job.Freelancer()) {
		s.log(ctx).WithFields(logger.Fields{
			"previous_freelancer": previous,
			"freelancer":          job.Freelancer(),
		}).Warn("Accepted proposal replaced an assigned freelancer")
	}

	result.Transaction = s.acceptTx(ctx, job)

	s.notifier.Notify(ctx, domain.Notification{
		UserAddress:       job.Freelancer(),
		Type:              domain.NotificationProposalAccepted,
		Title:             "Proposal accepted",
		Message:           fmt.Sprintf("Your proposal for %q was accepted", job.Title),
		RelatedJobID:      job.ID,
		RelatedProposalID: proposalID,
	})
	s.log(ctx).WithField("freelancer", job.Freelancer()).Info("Proposal accepted")
	return result, nil
}

// DirectAccept assigns a freelancer to a job without a proposal, with the
// same reassignment semantics as AcceptProposal.
func (s *AcceptanceService) DirectAccept(ctx context.Context, jobID, clientAddr, freelancer string) (*AcceptResult, error) {
	ctx = logger.SetJobID(ctx, jobID)
	ctx = logger.SetActor(ctx, domain.NormalizeAddress(clientAddr))
	if domain.NormalizeAddress(freelancer) == "" {
		return nil, fmt.Errorf("%w: freelancer_address is required", domain.ErrInvalidInput)
	}

	result := &AcceptResult{}
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		job, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(job.ClientAddress, clientAddr) {
			return fmt.Errorf("%w: only the job's client can accept a freelancer", domain.ErrUnauthorized)
		}
		if job.Status.Terminal() || job.Status == domain.JobStatusDisputed {
			return fmt.Errorf("%w: cannot assign a freelancer to a %s job", domain.ErrInvalidState, job.Status)
		}
		if err := assign(ctx, r, job, freelancer, true); err != nil {
			return err
		}
		result.Job = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	job := result.Job
	result.Transaction = s.acceptTx(ctx, job)
	s.log(ctx).WithField("freelancer", job.Freelancer()).Info("Freelancer accepted directly")
	return result, nil
}

// acceptTx builds the acceptJob call for the assigned freelancer. A job not on
// chain or a failed build yields nil.
func (s *AcceptanceService) acceptTx(ctx context.Context, job *domain.Job) *domain.TransactionDescriptor {
	if !job.OnChain() || s.chain == nil {
		return nil
	}
	tx, err := s.chain.BuildTransaction(ctx, domain.TxAcceptJob, domain.TxArgs{JobID: *job.BlockchainJobID}, job.Freelancer())
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to build acceptJob transaction; omitting it")
		return nil
	}
	return tx
}

// RepairAssignment restores a missing freelancer assignment from the single
// accepted proposal of a job and re-applies the status invariants. A job
// with zero or several accepted proposals is never guessed at. Nothing is
// written unless something changes.
func (s *AcceptanceService) RepairAssignment(ctx context.Context, jobID string) (*domain.Job, error) {
	ctx = logger.SetJobID(ctx, jobID)

	var repaired *domain.Job
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		job, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		repaired = job

		if !job.HasFreelancer() {
			accepted, err := r.Proposals.ListAccepted(ctx, jobID)
			if err != nil {
				return err
			}
			switch len(accepted) {
			case 1:
				s.log(ctx).WithField("freelancer", accepted[0].FreelancerAddress).Info("Repairing freelancer assignment from accepted proposal")
				return assign(ctx, r, job, accepted[0].FreelancerAddress, false)
			case 0:
			default:
				s.log(ctx).WithField(logger.FieldCount, len(accepted)).Warn("Several accepted proposals; not guessing an assignment")
			}
		}

		if len(ApplyInvariants(job)) == 0 {
			return nil
		}
		return r.Jobs.Save(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return repaired, nil
}

// assign sets job's freelancer, provisioning a profile for them. A
// reassignment restarts the work at in_progress; otherwise only an open job
// advances. It writes only when the job changes.
func assign(ctx context.Context, r *repository.Repos, job *domain.Job, freelancer string, reassign bool) error {
	if _, err := r.Users.EnsureExists(ctx, freelancer); err != nil {
		return err
	}
	before := *job
	job.SetFreelancer(freelancer)
	if reassign || job.Status == domain.JobStatusOpen {
		job.Status = domain.JobStatusInProgress
	}
	ApplyInvariants(job)
	if job.Freelancer() == before.Freelancer() && job.Status == before.Status {
		return nil
	}
	return r.Jobs.Save(ctx, job)
}
