package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/timmy/gigescrow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultJobListLimit = 50

// JobRepository handles job data operations.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Save writes every column of an existing job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Save(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// Get retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: domain.ErrNotFound when absent.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "job "+id)
	}
	return &job, nil
}

// GetForUpdate retrieves a job and locks its row until the surrounding
// transaction ends. On sqlite the lock clause is dropped by the dialect and
// immediate transactions serialize writers instead.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: locked job record.
//   - error: domain.ErrNotFound when absent.
func (r *JobRepository) GetForUpdate(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "job "+id)
	}
	return &job, nil
}

// List retrieves jobs matching filter, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: optional constraints; zero values are ignored.
// Returns:
//   - []domain.Job: matching job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	query := r.filtered(ctx, filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJobListLimit
	}

	var jobs []domain.Job
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Count counts jobs matching filter, ignoring pagination.
func (r *JobRepository) Count(ctx context.Context, filter domain.JobFilter) (int64, error) {
	var count int64
	if err := r.filtered(ctx, filter).Model(&domain.Job{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *JobRepository) filtered(ctx context.Context, filter domain.JobFilter) *gorm.DB {
	query := r.db.WithContext(ctx)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.ClientAddress != "" {
		query = query.Where("client_address = ?", domain.NormalizeAddress(filter.ClientAddress))
	}
	if filter.FreelancerAddress != "" {
		query = query.Where("freelancer_address = ?", domain.NormalizeAddress(filter.FreelancerAddress))
	}
	if filter.EscrowAddress != "" {
		query = query.Where("escrow_address = ?", domain.NormalizeAddress(filter.EscrowAddress))
	}
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.OnChainOnly {
		query = query.Where("blockchain_job_id IS NOT NULL")
	}
	return query
}

// Search matches jobs against filter, newest first. It serves filter-only
// searches and stands in for the search index when that is absent or failing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: free text, tags, category and status; an empty status means open.
// Returns:
//   - []domain.Job: matching job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	status := filter.Status
	if status == "" {
		status = domain.JobStatusOpen
	}

	query := r.db.WithContext(ctx).Where("status = ?", status)
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		pattern := "%" + q + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(category) LIKE ? OR LOWER(skills_required) LIKE ? OR tags LIKE ?",
			pattern, pattern, pattern, pattern, pattern,
		)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("LOWER(category) = ?", strings.ToLower(category))
	}
	if tags := domain.NormalizeTags(filter.Tags); len(tags) > 0 {
		anyTag := r.db.Where("tags LIKE ?", tagPattern(tags[0]))
		for _, tag := range tags[1:] {
			anyTag = anyTag.Or("tags LIKE ?", tagPattern(tag))
		}
		query = query.Where(anyTag)
	}

	var jobs []domain.Job
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to search jobs: %w", err)
	}
	return jobs, nil
}

// tagPattern matches one element of the JSON-encoded tags column.
func tagPattern(tag string) string {
	quoted, _ := json.Marshal(tag)
	return "%" + string(quoted) + "%"
}

// Tags returns every distinct tag carried by a job, sorted.
func (r *JobRepository) Tags(ctx context.Context) ([]string, error) {
	var lists []domain.StringArray
	if err := r.db.WithContext(ctx).Model(&domain.Job{}).Pluck("tags", &lists).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	seen := make(map[string]bool)
	tags := []string{}
	for _, list := range lists {
		for _, tag := range list {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// AdjustProposalCount adds delta to proposal_count, never dropping below zero.
func (r *JobRepository) AdjustProposalCount(ctx context.Context, id string, delta int) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		UpdateColumn("proposal_count", gorm.Expr("CASE WHEN proposal_count + ? < 0 THEN 0 ELSE proposal_count + ? END", delta, delta)).Error
}

// Delete removes a job by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Job{}, "id = ?", id).Error
}

// Stats summarizes the jobs a wallet posted or works on.
func (r *JobRepository) Stats(ctx context.Context, addr string) (*domain.UserStats, error) {
	norm := domain.NormalizeAddress(addr)
	stats := &domain.UserStats{}
	db := r.db.WithContext(ctx).Model(&domain.Job{})

	if err := db.Session(&gorm.Session{}).Where("client_address = ?", norm).Count(&stats.JobsPosted).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).Where("freelancer_address = ?", norm).Count(&stats.JobsAssigned).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("(client_address = ? OR freelancer_address = ?) AND status = ?", norm, norm, domain.JobStatusCompleted).
		Count(&stats.JobsCompleted).Error; err != nil {
		return nil, err
	}
	stats.TotalJobs = stats.JobsPosted + stats.JobsAssigned
	return stats, nil
}
