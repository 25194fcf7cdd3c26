package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/gigescrow/internal/chain"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
	"github.com/timmy/gigescrow/internal/storage"
)

const defaultSearchLimit = 20

// JobActionResult is a committed job change plus the optional contract call
// mirroring it. BlockchainError explains a call that could not be prepared.
type JobActionResult struct {
	Job             *domain.Job                   `json:"job"`
	Transaction     *domain.TransactionDescriptor `json:"blockchain_transaction,omitempty"`
	BlockchainError string                        `json:"blockchain_error,omitempty"`
}

// DeliverableUpload describes a stored deliverable file.
type DeliverableUpload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// JobServiceConfig holds the collaborators of JobService.
type JobServiceConfig struct {
	Store      *repository.Store
	Chain      ChainGateway
	Reconciler *ReconcileService
	Notifier   *NotificationService
	Index      SearchIndex
	Storage    storage.ObjectStorage
	MaxUpload  int64
	Logger     *logger.Logger
}

// JobService implements the job lifecycle around the reconciliation core.
type JobService struct {
	store      *repository.Store
	chain      ChainGateway
	reconciler *ReconcileService
	notifier   *NotificationService
	index      SearchIndex
	storage    storage.ObjectStorage
	maxUpload  int64
	logger     *logger.Logger
}

// NewJobService creates a new job service
func NewJobService(cfg JobServiceConfig) *JobService {
	return &JobService{
		store:      cfg.Store,
		chain:      cfg.Chain,
		reconciler: cfg.Reconciler,
		notifier:   cfg.Notifier,
		index:      cfg.Index,
		storage:    cfg.Storage,
		maxUpload:  cfg.MaxUpload,
		logger:     cfg.Logger,
	}
}

func (s *JobService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// CreateJob posts a new open job for client.
// Parameters:
//   - ctx: request context.
//   - client: posting wallet address.
//   - in: job fields.
// Returns:
//   - *domain.Job: the stored job.
//   - error: ErrInvalidInput for a missing title, negative budget or bad escrow address.
func (s *JobService) CreateJob(ctx context.Context, client string, in domain.JobInput) (*domain.Job, error) {
	client = domain.NormalizeAddress(client)
	if client == "" {
		return nil, fmt.Errorf("%w: client_address is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if in.Budget < 0 {
		return nil, fmt.Errorf("%w: budget must not be negative", domain.ErrInvalidInput)
	}

	job := &domain.Job{
		ID:                uuid.New().String(),
		ClientAddress:     client,
		Title:             strings.TrimSpace(in.Title),
		Description:       in.Description,
		Category:          in.Category,
		SkillsRequired:    domain.CleanStrings(in.SkillsRequired),
		Tags:              domain.NormalizeTags(in.Tags),
		Budget:            in.Budget,
		Deadline:          in.Deadline,
		Status:            domain.JobStatusOpen,
		IPFSHash:          in.IPFSHash,
		AllowEscrowRevert: in.AllowEscrowRevert,
	}
	if escrow := domain.NormalizeAddress(in.EscrowAddress); escrow != "" {
		if domain.SameAddress(escrow, client) {
			return nil, fmt.Errorf("%w: escrow agent must differ from the client", domain.ErrInvalidInput)
		}
		job.EscrowAddress = &escrow
	}

	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		if _, err := r.Users.EnsureExists(ctx, client); err != nil {
			return err
		}
		return r.Jobs.Create(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.SetJobID(ctx, job.ID)
	s.indexJob(ctx, job)
	s.log(ctx).WithField("budget", job.Budget).Info("Job created")
	return job, nil
}

// GetJob returns the reconciled view of a job.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.reconciler.ReconcileOnRead(ctx, jobID)
}

// ListJobs returns one page of jobs matching filter, each reconciled, plus
// the total number of matches.
func (s *JobService) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, int64, error) {
	jobs, err := s.store.Jobs.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Jobs.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return s.reconciler.ReconcileList(ctx, jobs), total, nil
}

// ListClientJobs returns the jobs posted by addr.
func (s *JobService) ListClientJobs(ctx context.Context, addr string) ([]domain.Job, error) {
	jobs, _, err := s.ListJobs(ctx, domain.JobFilter{ClientAddress: addr})
	return jobs, err
}

// ListFreelancerJobs returns the jobs assigned to addr.
func (s *JobService) ListFreelancerJobs(ctx context.Context, addr string) ([]domain.Job, error) {
	jobs, _, err := s.ListJobs(ctx, domain.JobFilter{FreelancerAddress: addr})
	return jobs, err
}

// SearchJobs finds jobs matching filter; an empty filter lists open jobs.
// Text searches go through the search index when one is configured and keep
// its order, falling back to the database when it is absent or failing.
// Results are reconciled and jobs no longer in the requested status dropped.
func (s *JobService) SearchJobs(ctx context.Context, filter domain.SearchFilter) ([]domain.Job, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Tags = domain.NormalizeTags(filter.Tags)
	if filter.Status == "" {
		filter.Status = domain.JobStatusOpen
	}
	if !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = defaultSearchLimit
	}

	start := time.Now()
	var jobs []domain.Job
	indexed := false
	if s.index != nil && filter.Query != "" && filter.Status == domain.JobStatusOpen {
		ids, err := s.index.Search(ctx, filter)
		if err == nil {
			if jobs, err = s.loadInOrder(ctx, ids); err != nil {
				return nil, err
			}
			indexed = true
		} else {
			s.log(ctx).WithError(err).Warn("Search index failed, falling back to database search")
		}
	}
	if !indexed {
		found, err := s.store.Jobs.Search(ctx, filter)
		if err != nil {
			return nil, err
		}
		jobs = found
	}

	out := make([]domain.Job, 0, len(jobs))
	for _, job := range s.reconciler.ReconcileList(ctx, jobs) {
		if job.Status == filter.Status {
			out = append(out, job)
		}
	}
	logger.With(logger.Fields{logger.FieldCount: len(out), "indexed": indexed}).Since(start).Debug(ctx, "Job search for %q", filter.Query)
	return out, nil
}

// loadInOrder loads jobs by ID, in the order given. IDs with no stored job
// are skipped.
func (s *JobService) loadInOrder(ctx context.Context, ids []string) ([]domain.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.store.Jobs.List(ctx, domain.JobFilter{IDs: ids, Limit: len(ids)})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Job, len(found))
	for _, job := range found {
		byID[job.ID] = job
	}
	jobs := make([]domain.Job, 0, len(found))
	for _, id := range ids {
		if job, ok := byID[id]; ok {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// SearchTags returns every tag in use, sorted.
func (s *JobService) SearchTags(ctx context.Context) ([]string, error) {
	return s.store.Jobs.Tags(ctx)
}

// UpdateJob edits an open job. Only its client may do so.
func (s *JobService) UpdateJob(ctx context.Context, jobID, client string, patch domain.JobPatch) (*domain.Job, error) {
	ctx = logger.SetJobID(ctx, jobID)
	var job *domain.Job
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		j, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(j.ClientAddress, client) {
			return fmt.Errorf("%w: only the job's client can edit it", domain.ErrUnauthorized)
		}
		if j.Status != domain.JobStatusOpen || j.HasFreelancer() {
			return fmt.Errorf("%w: only open jobs can be edited", domain.ErrInvalidState)
		}
		if patch.Title != nil {
			if strings.TrimSpace(*patch.Title) == "" {
				return fmt.Errorf("%w: title must not be empty", domain.ErrInvalidInput)
			}
			j.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			j.Description = *patch.Description
		}
		if patch.Category != nil {
			j.Category = *patch.Category
		}
		if patch.SkillsRequired != nil {
			j.SkillsRequired = domain.CleanStrings(patch.SkillsRequired)
		}
		if patch.Tags != nil {
			j.Tags = domain.NormalizeTags(patch.Tags)
		}
		if patch.Budget != nil {
			if *patch.Budget < 0 {
				return fmt.Errorf("%w: budget must not be negative", domain.ErrInvalidInput)
			}
			if j.OnChain() {
				return fmt.Errorf("%w: budget is locked once the job is funded on chain", domain.ErrInvalidState)
			}
			j.Budget = *patch.Budget
		}
		if patch.Deadline != nil {
			j.Deadline = *patch.Deadline
		}
		ApplyInvariants(j)
		job = j
		return r.Jobs.Save(ctx, j)
	})
	if err != nil {
		return nil, err
	}
	s.indexJob(ctx, job)
	return job, nil
}

// PrepareCreateJobTx builds the createJob call that funds the job's budget in
// the escrow contract.
func (s *JobService) PrepareCreateJobTx(ctx context.Context, jobID, client string) (*domain.TransactionDescriptor, error) {
	ctx = logger.SetJobID(ctx, jobID)
	job, err := s.store.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !domain.SameAddress(job.ClientAddress, client) {
		return nil, fmt.Errorf("%w: only the job's client can fund it", domain.ErrUnauthorized)
	}
	if job.OnChain() {
		return nil, fmt.Errorf("%w: job is already linked to blockchain job %d", domain.ErrInvalidState, *job.BlockchainJobID)
	}
	if job.Status != domain.JobStatusOpen {
		return nil, fmt.Errorf("%w: only open jobs can be funded", domain.ErrInvalidState)
	}
	if s.chain == nil {
		return nil, fmt.Errorf("%w: no chain gateway", domain.ErrChainUnavailable)
	}
	wei, err := chain.EtherToWei(job.Budget)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return s.chain.BuildTransaction(ctx, domain.TxCreateJob, domain.TxArgs{
		Title:    job.Title,
		IPFSHash: job.IPFSHash,
		Deadline: job.Deadline,
		ValueWei: wei,
	}, job.ClientAddress)
}

// LinkBlockchainJob records the contract job ID of a funded job. The ID is
// taken from chainJobID, or read from the JobCreated event of txHash.
func (s *JobService) LinkBlockchainJob(ctx context.Context, jobID, client string, chainJobID *int64, txHash string) (*domain.Job, error) {
	ctx = logger.SetJobID(ctx, jobID)
	if chainJobID == nil {
		if txHash == "" {
			return nil, fmt.Errorf("%w: blockchain_job_id or tx_hash is required", domain.ErrInvalidInput)
		}
		if s.chain == nil {
			return nil, fmt.Errorf("%w: no chain gateway", domain.ErrChainUnavailable)
		}
		id, err := s.chain.CreatedJobID(ctx, txHash)
		if err != nil {
			return nil, err
		}
		chainJobID = &id
	}
	if *chainJobID < 0 {
		return nil, fmt.Errorf("%w: negative blockchain job id", domain.ErrInvalidInput)
	}

	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		job, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(job.ClientAddress, client) {
			return fmt.Errorf("%w: only the job's client can link it", domain.ErrUnauthorized)
		}
		if job.OnChain() {
			if *job.BlockchainJobID == *chainJobID {
				return nil
			}
			return fmt.Errorf("%w: job is already linked to blockchain job %d", domain.ErrInvalidState, *job.BlockchainJobID)
		}
		id := *chainJobID
		job.BlockchainJobID = &id
		return r.Jobs.Save(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx).WithField(logger.FieldChainJobID, *chainJobID).Info("Job linked to blockchain")
	return s.reconciler.ReconcileOnRead(ctx, jobID)
}

// SubmitWork records the freelancer's deliverable and moves the job to
// submitted. For on-chain jobs the matching submitWork call is prepared.
func (s *JobService) SubmitWork(ctx context.Context, jobID, freelancer, deliverableURL string) (*JobActionResult, error) {
	ctx = logger.SetJobID(ctx, jobID)
	ctx = logger.SetActor(ctx, domain.NormalizeAddress(freelancer))
	if strings.TrimSpace(deliverableURL) == "" {
		return nil, fmt.Errorf("%w: deliverable_url is required", domain.ErrInvalidInput)
	}

	var job *domain.Job
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		j, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !j.HasFreelancer() || !domain.SameAddress(j.Freelancer(), freelancer) {
			return fmt.Errorf("%w: only the assigned freelancer can submit work", domain.ErrUnauthorized)
		}
		ApplyInvariants(j)
		if j.Status != domain.JobStatusInProgress && j.Status != domain.JobStatusSubmitted {
			return fmt.Errorf("%w: cannot submit work for a %s job", domain.ErrInvalidState, j.Status)
		}
		j.DeliverableURL = strings.TrimSpace(deliverableURL)
		j.Status = domain.JobStatusSubmitted
		ApplyInvariants(j)
		job = j
		return r.Jobs.Save(ctx, j)
	})
	if err != nil {
		return nil, err
	}

	result := &JobActionResult{Job: job}
	if job.OnChain() && s.chain != nil {
		tx, err := s.chain.BuildTransaction(ctx, domain.TxSubmitWork, domain.TxArgs{
			JobID:          *job.BlockchainJobID,
			DeliverableRef: DeliverableRef(job.ID, job.DeliverableURL),
		}, job.Freelancer())
		if err != nil {
			s.log(ctx).WithError(err).Warn("Failed to build submitWork transaction")
			result.BlockchainError = err.Error()
		} else {
			result.Transaction = tx
		}
	}

	s.notifier.Notify(ctx, domain.Notification{
		UserAddress:  job.ClientAddress,
		Type:         domain.NotificationWorkSubmitted,
		Title:        "Work submitted",
		Message:      fmt.Sprintf("Work was submitted for %q", job.Title),
		RelatedJobID: job.ID,
	})
	return result, nil
}

// UploadDeliverable stores a deliverable file for the assigned freelancer
// and returns a URL that can be submitted as the deliverable.
func (s *JobService) UploadDeliverable(ctx context.Context, jobID, freelancer, filename, contentType string, body io.Reader, size int64) (*DeliverableUpload, error) {
	ctx = logger.SetJobID(ctx, jobID)
	if s.storage == nil {
		return nil, fmt.Errorf("%w: object storage is not configured", domain.ErrInvalidState)
	}
	if s.maxUpload > 0 && size > s.maxUpload {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, s.maxUpload)
	}
	job, err := s.store.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.HasFreelancer() || !domain.SameAddress(job.Freelancer(), freelancer) {
		return nil, fmt.Errorf("%w: only the assigned freelancer can upload deliverables", domain.ErrUnauthorized)
	}

	key := storage.DeliverableKey(jobID, filename)
	if err := s.storage.Upload(ctx, key, body, size, contentType); err != nil {
		return nil, fmt.Errorf("upload deliverable: %w", err)
	}
	url, err := s.storage.GetURL(ctx, key)
	if err != nil {
		if derr := s.storage.Delete(ctx, key); derr != nil {
			s.log(ctx).WithError(derr).Warnf("Failed to remove unreachable deliverable %s", key)
		}
		return nil, fmt.Errorf("deliverable url: %w", err)
	}
	logger.With(logger.Fields{logger.FieldSize: size}).Info(ctx, "Deliverable uploaded to %s", key)
	return &DeliverableUpload{Key: key, URL: url}, nil
}

// CancelJob withdraws an open job that no freelancer has taken. For on-chain
// jobs the cancelJob call refunding the client is prepared.
func (s *JobService) CancelJob(ctx context.Context, jobID, client string) (*JobActionResult, error) {
	ctx = logger.SetJobID(ctx, jobID)
	var (
		job       *domain.Job
		proposals []domain.Proposal
	)
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		j, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(j.ClientAddress, client) {
			return fmt.Errorf("%w: only the job's client can cancel it", domain.ErrUnauthorized)
		}
		ApplyInvariants(j)
		if j.Status != domain.JobStatusOpen {
			return fmt.Errorf("%w: only open jobs can be cancelled", domain.ErrInvalidState)
		}
		j.Status = domain.JobStatusCancelled
		if proposals, err = r.Proposals.ListByJob(ctx, jobID); err != nil {
			return err
		}
		job = j
		return r.Jobs.Save(ctx, j)
	})
	if err != nil {
		return nil, err
	}

	s.unindexJob(ctx, jobID)
	result := &JobActionResult{Job: job}
	if job.OnChain() && s.chain != nil {
		tx, err := s.chain.BuildTransaction(ctx, domain.TxCancelJob, domain.TxArgs{JobID: *job.BlockchainJobID}, job.ClientAddress)
		if err != nil {
			s.log(ctx).WithError(err).Warn("Failed to build cancelJob transaction")
			result.BlockchainError = err.Error()
		} else {
			result.Transaction = tx
		}
	}
	for _, p := range proposals {
		if p.Status != domain.ProposalStatusPending {
			continue
		}
		s.notifier.Notify(ctx, domain.Notification{
			UserAddress:       p.FreelancerAddress,
			Type:              domain.NotificationJobCancelled,
			Title:             "Job cancelled",
			Message:           fmt.Sprintf("%q was cancelled by the client", job.Title),
			RelatedJobID:      job.ID,
			RelatedProposalID: p.ID,
		})
	}
	return result, nil
}

// DeleteJob removes an open or cancelled job with its proposals and bookmarks.
func (s *JobService) DeleteJob(ctx context.Context, jobID, client string) error {
	ctx = logger.SetJobID(ctx, jobID)
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		job, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !domain.SameAddress(job.ClientAddress, client) {
			return fmt.Errorf("%w: only the job's client can delete it", domain.ErrUnauthorized)
		}
		ApplyInvariants(job)
		if !job.Deletable() {
			return fmt.Errorf("%w: a %s job cannot be deleted", domain.ErrInvalidState, job.Status)
		}
		if job.OnChain() && job.Status == domain.JobStatusOpen {
			return fmt.Errorf("%w: cancel the funded job before deleting it", domain.ErrInvalidState)
		}
		if err := r.Proposals.DeleteByJob(ctx, jobID); err != nil {
			return err
		}
		if err := r.SavedJobs.DeleteByJob(ctx, jobID); err != nil {
			return err
		}
		return r.Jobs.Delete(ctx, jobID)
	})
	if err != nil {
		return err
	}
	s.unindexJob(ctx, jobID)
	s.log(ctx).Info("Job deleted")
	return nil
}

// TransactionStatus reports what the chain knows about a transaction.
func (s *JobService) TransactionStatus(ctx context.Context, txHash string) (*domain.TransactionStatus, error) {
	if s.chain == nil {
		return nil, fmt.Errorf("%w: no chain gateway", domain.ErrChainUnavailable)
	}
	return s.chain.TransactionStatus(ctx, txHash)
}

func (s *JobService) indexJob(ctx context.Context, job *domain.Job) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, job); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to index job")
	}
}

func (s *JobService) unindexJob(ctx context.Context, jobID string) {
	if s.index == nil {
		return
	}
	if err := s.index.Remove(ctx, jobID); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to remove job from index")
	}
}
