package repository

import (
	"context"
	"fmt"

	"github.com/timmy/gigescrow/internal/domain"
	"gorm.io/gorm"
)

// ProposalRepository handles proposal data operations.
type ProposalRepository struct {
	db *gorm.DB
}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository(db *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a new proposal record.
func (r *ProposalRepository) Create(ctx context.Context, p *domain.Proposal) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// Save writes every column of an existing proposal.
func (r *ProposalRepository) Save(ctx context.Context, p *domain.Proposal) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// Get retrieves a proposal by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: proposal ID.
// Returns:
//   - *domain.Proposal: proposal record if found.
//   - error: domain.ErrNotFound when absent.
func (r *ProposalRepository) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	var p domain.Proposal
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "proposal "+id)
	}
	return &p, nil
}

// ListByJob retrieves every proposal for a job, oldest first.
func (r *ProposalRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Proposal, error) {
	var proposals []domain.Proposal
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&proposals).Error; err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return proposals, nil
}

// ListByFreelancer retrieves proposals submitted by a wallet, newest first.
func (r *ProposalRepository) ListByFreelancer(ctx context.Context, addr string) ([]domain.Proposal, error) {
	var proposals []domain.Proposal
	if err := r.db.WithContext(ctx).
		Where("freelancer_address = ?", domain.NormalizeAddress(addr)).
		Order("created_at DESC").
		Find(&proposals).Error; err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return proposals, nil
}

// ListAccepted retrieves the accepted proposals for a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
// Returns:
//   - []domain.Proposal: accepted proposals; more than one means the
//     assignment is ambiguous.
//   - error: non-nil if the query fails.
func (r *ProposalRepository) ListAccepted(ctx context.Context, jobID string) ([]domain.Proposal, error) {
	var proposals []domain.Proposal
	if err := r.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, domain.ProposalStatusAccepted).
		Order("updated_at DESC").
		Find(&proposals).Error; err != nil {
		return nil, fmt.Errorf("failed to list accepted proposals: %w", err)
	}
	return proposals, nil
}

// ExistsForFreelancer reports whether addr already bid on jobID.
func (r *ProposalRepository) ExistsForFreelancer(ctx context.Context, jobID, addr string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Proposal{}).
		Where("job_id = ? AND freelancer_address = ?", jobID, domain.NormalizeAddress(addr)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete removes a proposal by ID.
func (r *ProposalRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Proposal{}, "id = ?", id).Error
}

// DeleteByJob removes every proposal for a job.
func (r *ProposalRepository) DeleteByJob(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Delete(&domain.Proposal{}, "job_id = ?", jobID).Error
}
