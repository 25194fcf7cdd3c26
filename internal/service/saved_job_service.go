package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/repository"
)

// SavedJobService manages job bookmarks.
type SavedJobService struct {
	store      *repository.Store
	reconciler *ReconcileService
}

// NewSavedJobService creates a new saved job service
func NewSavedJobService(store *repository.Store, reconciler *ReconcileService) *SavedJobService {
	return &SavedJobService{store: store, reconciler: reconciler}
}

// Save bookmarks a job for addr. Saving twice is not an error.
func (s *SavedJobService) Save(ctx context.Context, addr, jobID string) error {
	addr = domain.NormalizeAddress(addr)
	if addr == "" {
		return fmt.Errorf("%w: user_address is required", domain.ErrInvalidInput)
	}
	if _, err := s.store.Jobs.Get(ctx, jobID); err != nil {
		return err
	}
	return s.store.SavedJobs.Save(ctx, &domain.SavedJob{
		ID:          uuid.New().String(),
		UserAddress: addr,
		JobID:       jobID,
	})
}

// Unsave removes a bookmark.
func (s *SavedJobService) Unsave(ctx context.Context, addr, jobID string) error {
	removed, err := s.store.SavedJobs.Delete(ctx, addr, jobID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: job %s is not saved", domain.ErrNotFound, jobID)
	}
	return nil
}

// List returns addr's bookmarked jobs, reconciled.
func (s *SavedJobService) List(ctx context.Context, addr string) ([]domain.Job, error) {
	ids, err := s.store.SavedJobs.ListJobIDs(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Job{}, nil
	}
	jobs, err := s.store.Jobs.List(ctx, domain.JobFilter{IDs: ids, Limit: len(ids)})
	if err != nil {
		return nil, err
	}
	return s.reconciler.ReconcileList(ctx, jobs), nil
}
