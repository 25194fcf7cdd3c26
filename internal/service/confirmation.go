package service

import (
	"context"
	"fmt"

	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
)

// Role is the party confirming completion.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// ParseRole validates a role query value.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClient, RoleFreelancer:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: role must be client or freelancer, got %q", domain.ErrInvalidInput, s)
}

// ConfirmationResult reports a confirmation and whatever release step remains.
type ConfirmationResult struct {
	Job                  *domain.Job                   `json:"job"`
	BothConfirmed        bool                          `json:"both_confirmed"`
	AlreadyConfirmed     bool                          `json:"already_confirmed"`
	NeedsAccept          bool                          `json:"needs_accept"`
	NeedsSubmit          bool                          `json:"needs_submit"`
	FundsAlreadyReleased bool                          `json:"funds_already_released"`
	Inconsistent         bool                          `json:"inconsistent"`
	NeededAction         NeededAction                  `json:"needed_action"`
	Transaction          *domain.TransactionDescriptor `json:"blockchain_transaction,omitempty"`
	BlockchainError      string                        `json:"blockchain_error,omitempty"`
	Message              string                        `json:"message"`
}

func (r *ConfirmationResult) apply(out ReleaseOutcome) {
	r.Transaction = out.Transaction
	r.NeededAction = out.NeededAction
	r.NeedsAccept = out.NeedsAccept
	r.NeedsSubmit = out.NeedsSubmit
	r.FundsAlreadyReleased = out.FundsAlreadyReleased
	r.Inconsistent = out.Inconsistent
	r.BlockchainError = out.Error
	r.Message = releaseMessage(out)
}

func releaseMessage(out ReleaseOutcome) string {
	switch {
	case out.FundsAlreadyReleased:
		return "Job completed; escrowed funds were already released"
	case out.Inconsistent:
		return "Job completed locally but the escrow contract needs manual resolution"
	case out.Error != "":
		return "Job completed; payment release could not be prepared"
	case out.NeededAction == ActionAcceptJob:
		return "Job completed; the freelancer must accept, then submit on chain before payment"
	case out.NeededAction == ActionSubmitWork:
		return "Job completed; the freelancer must submit work on chain before payment"
	case out.NeededAction == ActionApproveWork:
		return "Job completed; sign the approval to release payment"
	}
	return "Job completed"
}

// ConfirmationService runs the dual-confirmation state machine.
type ConfirmationService struct {
	store    *repository.Store
	release  *PaymentRelease
	notifier *NotificationService
	logger   *logger.Logger
}

// NewConfirmationService creates a new confirmation service
func NewConfirmationService(store *repository.Store, release *PaymentRelease, notifier *NotificationService, log *logger.Logger) *ConfirmationService {
	return &ConfirmationService{
		store:    store,
		release:  release,
		notifier: notifier,
		logger:   log,
	}
}

func (s *ConfirmationService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// ConfirmCompletion records one party's confirmation. The call that observes
// the other party's flag already set completes the job and prepares the
// payment release; every other call returns without touching the chain.
// Parameters:
//   - ctx: request context.
//   - jobID: job being confirmed.
//   - role: which party the caller confirms as.
//   - actor: the caller's wallet address.
// Returns:
//   - *ConfirmationResult: the committed job plus release guidance.
//   - error: ErrNotFound, ErrUnauthorized or ErrInvalidState; release
//     failures are reported in the result instead.
func (s *ConfirmationService) ConfirmCompletion(ctx context.Context, jobID string, role Role, actor string) (*ConfirmationResult, error) {
	ctx = logger.SetJobID(ctx, jobID)
	ctx = logger.SetActor(ctx, domain.NormalizeAddress(actor))

	var (
		job       *domain.Job
		already   bool
		triggered bool
	)
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		j, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if err := authorizeConfirmation(j, role, actor); err != nil {
			return err
		}

		if confirmedBy(j, role) {
			already = true
			job = j
			if len(ApplyInvariants(j)) == 0 {
				return nil
			}
			return r.Jobs.Save(ctx, j)
		}

		switch j.Status {
		case domain.JobStatusInProgress, domain.JobStatusSubmitted, domain.JobStatusCompleted:
		case domain.JobStatusOpen:
			if !j.HasFreelancer() {
				return fmt.Errorf("%w: job has no assigned freelancer", domain.ErrInvalidState)
			}
		default:
			return fmt.Errorf("%w: cannot confirm completion of a %s job", domain.ErrInvalidState, j.Status)
		}

		wasCompleted := j.Status == domain.JobStatusCompleted
		setConfirmed(j, role)
		ApplyInvariants(j)
		if j.BothConfirmed() && !wasCompleted {
			triggered = true
			if err := r.Users.IncrementCompleted(ctx, j.Freelancer()); err != nil {
				return err
			}
		}
		if err := r.Jobs.Save(ctx, j); err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		confirmations.WithLabelValues(string(role), "rejected").Inc()
		return nil, err
	}

	result := &ConfirmationResult{Job: job}
	switch {
	case already:
		confirmations.WithLabelValues(string(role), "already_confirmed").Inc()
		result.AlreadyConfirmed = true
		result.NeededAction = waitingAction(job)
		result.Message = "Completion was already confirmed"

	case !triggered:
		confirmations.WithLabelValues(string(role), "waiting").Inc()
		result.NeededAction = waitingAction(job)
		result.Message = "Completion confirmed; waiting for the other party"
		s.notifier.Notify(ctx, domain.Notification{
			UserAddress:  counterparty(job, role),
			Type:         domain.NotificationCompletionConfirmed,
			Title:        "Completion confirmed",
			Message:      fmt.Sprintf("The %s confirmed completion of %q", role, job.Title),
			RelatedJobID: job.ID,
		})

	default:
		confirmations.WithLabelValues(string(role), "completed").Inc()
		result.BothConfirmed = true
		result.apply(s.release.Run(ctx, job, job.ClientAddress))
		s.log(ctx).WithFields(logger.Fields{
			"needed_action": string(result.NeededAction),
			"has_tx":        result.Transaction != nil,
		}).Info("Both parties confirmed completion")
		for _, addr := range []string{job.ClientAddress, job.Freelancer()} {
			s.notifier.Notify(ctx, domain.Notification{
				UserAddress:  addr,
				Type:         domain.NotificationJobCompleted,
				Title:        "Job completed",
				Message:      fmt.Sprintf("Both parties confirmed completion of %q", job.Title),
				RelatedJobID: job.ID,
			})
		}
	}
	return result, nil
}

func authorizeConfirmation(job *domain.Job, role Role, actor string) error {
	switch role {
	case RoleClient:
		if !domain.SameAddress(job.ClientAddress, actor) {
			return fmt.Errorf("%w: only the client can confirm as client", domain.ErrUnauthorized)
		}
	case RoleFreelancer:
		if !job.HasFreelancer() || !domain.SameAddress(job.Freelancer(), actor) {
			return fmt.Errorf("%w: only the assigned freelancer can confirm as freelancer", domain.ErrUnauthorized)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	return nil
}

func confirmedBy(job *domain.Job, role Role) bool {
	if role == RoleClient {
		return job.ClientConfirmedCompletion
	}
	return job.FreelancerConfirmedCompletion
}

func setConfirmed(job *domain.Job, role Role) {
	if role == RoleClient {
		job.ClientConfirmedCompletion = true
		return
	}
	job.FreelancerConfirmedCompletion = true
}

func counterparty(job *domain.Job, role Role) string {
	if role == RoleClient {
		return job.Freelancer()
	}
	return job.ClientAddress
}

func waitingAction(job *domain.Job) NeededAction {
	if job.BothConfirmed() {
		return ActionNone
	}
	return ActionWaitForOtherParty
}
