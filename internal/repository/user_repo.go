package repository

import (
	"context"

	"github.com/timmy/gigescrow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository handles user profile operations.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Get retrieves a user by wallet address.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - addr: wallet address, compared lower-cased.
// Returns:
//   - *domain.User: user record.
//   - error: domain.ErrNotFound when no such user exists.
func (r *UserRepository) Get(ctx context.Context, addr string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "wallet_address = ?", domain.NormalizeAddress(addr)).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	user.WalletAddress = domain.NormalizeAddress(user.WalletAddress)
	return r.db.WithContext(ctx).Create(user).Error
}

// Save updates every column of an existing user.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// EnsureExists provisions a minimal profile for addr unless one exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - addr: wallet address to provision.
// Returns:
//   - bool: true if a new row was inserted.
//   - error: non-nil if the insert fails.
func (r *UserRepository) EnsureExists(ctx context.Context, addr string) (bool, error) {
	user := domain.NewProvisionedUser(addr)
	if user.WalletAddress == "" {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wallet_address"}}, DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementCompleted bumps the jobs_completed counter.
func (r *UserRepository) IncrementCompleted(ctx context.Context, addr string) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("wallet_address = ?", domain.NormalizeAddress(addr)).
		UpdateColumn("jobs_completed", gorm.Expr("jobs_completed + ?", 1)).Error
}
