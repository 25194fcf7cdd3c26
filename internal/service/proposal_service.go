package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
)

// ProposalService manages freelancer bids.
type ProposalService struct {
	store    *repository.Store
	notifier *NotificationService
	logger   *logger.Logger
}

// NewProposalService creates a new proposal service
func NewProposalService(store *repository.Store, notifier *NotificationService, log *logger.Logger) *ProposalService {
	return &ProposalService{store: store, notifier: notifier, logger: log}
}

func (s *ProposalService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// CreateProposal submits a bid on an open job. Each freelancer may bid once
// per job and never on their own job.
func (s *ProposalService) CreateProposal(ctx context.Context, freelancer string, in domain.ProposalInput) (*domain.Proposal, error) {
	freelancer = domain.NormalizeAddress(freelancer)
	if freelancer == "" {
		return nil, fmt.Errorf("%w: freelancer_address is required", domain.ErrInvalidInput)
	}
	if in.JobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", domain.ErrInvalidInput)
	}
	ctx = logger.SetJobID(ctx, in.JobID)
	ctx = logger.SetActor(ctx, freelancer)

	proposal := &domain.Proposal{
		ID:                uuid.New().String(),
		JobID:             in.JobID,
		FreelancerAddress: freelancer,
		CoverLetter:       in.CoverLetter,
		ProposedTimeline:  in.ProposedTimeline,
		PortfolioLinks:    domain.CleanStrings(in.PortfolioLinks),
		Status:            domain.ProposalStatusPending,
	}

	var job *domain.Job
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		j, err := r.Jobs.GetForUpdate(ctx, in.JobID)
		if err != nil {
			return err
		}
		if j.Status != domain.JobStatusOpen || j.HasFreelancer() {
			return fmt.Errorf("%w: job is not accepting proposals", domain.ErrInvalidState)
		}
		if domain.SameAddress(j.ClientAddress, freelancer) {
			return fmt.Errorf("%w: clients cannot bid on their own jobs", domain.ErrInvalidInput)
		}
		exists, err := r.Proposals.ExistsForFreelancer(ctx, in.JobID, freelancer)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: a proposal for this job already exists", domain.ErrInvalidState)
		}
		if _, err := r.Users.EnsureExists(ctx, freelancer); err != nil {
			return err
		}
		if err := r.Proposals.Create(ctx, proposal); err != nil {
			return err
		}
		job = j
		return r.Jobs.AdjustProposalCount(ctx, j.ID, 1)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, domain.Notification{
		UserAddress:       job.ClientAddress,
		Type:              domain.NotificationProposalReceived,
		Title:             "New proposal",
		Message:           fmt.Sprintf("A freelancer bid on %q", job.Title),
		RelatedJobID:      job.ID,
		RelatedProposalID: proposal.ID,
	})
	s.log(ctx).WithField(logger.FieldProposalID, proposal.ID).Info("Proposal created")
	return proposal, nil
}

// GetProposal returns one proposal.
func (s *ProposalService) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	return s.store.Proposals.Get(ctx, id)
}

// ListJobProposals returns every proposal for a job, oldest first.
func (s *ProposalService) ListJobProposals(ctx context.Context, jobID string) ([]domain.Proposal, error) {
	if _, err := s.store.Jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.Proposals.ListByJob(ctx, jobID)
}

// ListFreelancerProposals returns a freelancer's proposals.
func (s *ProposalService) ListFreelancerProposals(ctx context.Context, addr string) ([]domain.Proposal, error) {
	return s.store.Proposals.ListByFreelancer(ctx, addr)
}

// RejectProposal declines a pending proposal. Only the job's client may.
func (s *ProposalService) RejectProposal(ctx context.Context, id, client string) (*domain.Proposal, error) {
	ctx = logger.SetProposalID(ctx, id)
	var (
		proposal *domain.Proposal
		job      *domain.Job
	)
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		p, err := r.Proposals.Get(ctx, id)
		if err != nil {
			return err
		}
		j, err := r.Jobs.Get(ctx, p.JobID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(j.ClientAddress, client) {
			return fmt.Errorf("%w: only the job's client can reject proposals", domain.ErrUnauthorized)
		}
		if p.Status != domain.ProposalStatusPending {
			return fmt.Errorf("%w: proposal is %s", domain.ErrInvalidState, p.Status)
		}
		p.Status = domain.ProposalStatusRejected
		proposal, job = p, j
		return r.Proposals.Save(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, domain.Notification{
		UserAddress:       proposal.FreelancerAddress,
		Type:              domain.NotificationProposalRejected,
		Title:             "Proposal declined",
		Message:           fmt.Sprintf("Your proposal for %q was declined", job.Title),
		RelatedJobID:      job.ID,
		RelatedProposalID: proposal.ID,
	})
	return proposal, nil
}

// WithdrawProposal deletes a freelancer's own pending proposal.
func (s *ProposalService) WithdrawProposal(ctx context.Context, id, freelancer string) error {
	ctx = logger.SetProposalID(ctx, id)
	return s.store.Transaction(ctx, func(r *repository.Repos) error {
		p, err := r.Proposals.Get(ctx, id)
		if err != nil {
			return err
		}
		if !domain.SameAddress(p.FreelancerAddress, freelancer) {
			return fmt.Errorf("%w: only the proposing freelancer can withdraw", domain.ErrUnauthorized)
		}
		if p.Status != domain.ProposalStatusPending {
			return fmt.Errorf("%w: only pending proposals can be withdrawn", domain.ErrInvalidState)
		}
		if err := r.Proposals.Delete(ctx, id); err != nil {
			return err
		}
		return r.Jobs.AdjustProposalCount(ctx, p.JobID, -1)
	})
}
