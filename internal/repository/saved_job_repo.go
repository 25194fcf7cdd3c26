package repository

import (
	"context"

	"github.com/timmy/gigescrow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SavedJobRepository handles job bookmarks.
type SavedJobRepository struct {
	db *gorm.DB
}

// NewSavedJobRepository creates a new SavedJobRepository.
func NewSavedJobRepository(db *gorm.DB) *SavedJobRepository {
	return &SavedJobRepository{db: db}
}

// Save bookmarks a job. Saving twice is a no-op.
func (r *SavedJobRepository) Save(ctx context.Context, s *domain.SavedJob) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_address"}, {Name: "job_id"}},
			DoNothing: true,
		}).
		Create(s).Error
}

// Delete removes a bookmark.
func (r *SavedJobRepository) Delete(ctx context.Context, addr, jobID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Delete(&domain.SavedJob{}, "user_address = ? AND job_id = ?", domain.NormalizeAddress(addr), jobID)
	return res.RowsAffected > 0, res.Error
}

// DeleteByJob removes every bookmark of a job.
func (r *SavedJobRepository) DeleteByJob(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Delete(&domain.SavedJob{}, "job_id = ?", jobID).Error
}

// ListJobIDs returns the bookmarked job IDs of a user, most recent first.
func (r *SavedJobRepository) ListJobIDs(ctx context.Context, addr string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.SavedJob{}).
		Where("user_address = ?", domain.NormalizeAddress(addr)).
		Order("created_at DESC").
		Pluck("job_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
