package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repos groups the typed repositories bound to one database handle. Inside
// Store.Transaction every repository shares the same transaction.
type Repos struct {
	Users         *UserRepository
	Jobs          *JobRepository
	Proposals     *ProposalRepository
	Notifications *NotificationRepository
	SavedJobs     *SavedJobRepository
	Conversations *ConversationRepository
}

func newRepos(db *gorm.DB) *Repos {
	return &Repos{
		Users:         NewUserRepository(db),
		Jobs:          NewJobRepository(db),
		Proposals:     NewProposalRepository(db),
		Notifications: NewNotificationRepository(db),
		SavedJobs:     NewSavedJobRepository(db),
		Conversations: NewConversationRepository(db),
	}
}

// Store is the record store: non-transactional repositories plus a unit of work.
type Store struct {
	*Repos
	db *gorm.DB
}

// NewStore creates a Store over db.
// Parameters:
//   - db: GORM database handle.
// Returns:
//   - *Store: store whose embedded repositories run outside any transaction.
func NewStore(db *gorm.DB) *Store {
	return &Store{Repos: newRepos(db), db: db}
}

// Transaction runs fn inside one database transaction. Returning an error
// from fn rolls back every write made through the supplied Repos.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fn: unit of work.
// Returns:
//   - error: fn's error or the commit error.
func (s *Store) Transaction(ctx context.Context, fn func(*Repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepos(tx))
	})
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// DB exposes the underlying handle for lifecycle management.
func (s *Store) DB() *gorm.DB {
	return s.db
}
