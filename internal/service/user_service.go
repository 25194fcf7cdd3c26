package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
)

// UserService manages wallet profiles.
type UserService struct {
	store  *repository.Store
	logger *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(store *repository.Store, log *logger.Logger) *UserService {
	return &UserService{store: store, logger: log}
}

// CreateUser registers a profile. A profile provisioned automatically for the
// address is completed instead of rejected.
func (s *UserService) CreateUser(ctx context.Context, in domain.UserInput) (*domain.User, error) {
	addr := domain.NormalizeAddress(in.WalletAddress)
	if addr == "" {
		return nil, fmt.Errorf("%w: wallet_address is required", domain.ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = domain.UserRoleBoth
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}

	var user *domain.User
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		existing, err := r.Users.Get(ctx, addr)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			user = domain.NewProvisionedUser(addr)
		case err != nil:
			return err
		case existing.Username != domain.NewProvisionedUser(addr).Username:
			return fmt.Errorf("%w: user %s is already registered", domain.ErrInvalidState, addr)
		default:
			user = existing
		}

		if name := strings.TrimSpace(in.Username); name != "" {
			user.Username = name
		}
		user.Email = in.Email
		user.Role = role
		user.Bio = in.Bio
		if in.Skills != nil {
			user.Skills = domain.CleanStrings(in.Skills)
		}
		user.PortfolioURL = in.PortfolioURL
		user.AvatarURL = in.AvatarURL
		if existing == nil {
			return r.Users.Create(ctx, user)
		}
		return r.Users.Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "User %s registered", addr)
	return user, nil
}

// GetUser returns a profile.
func (s *UserService) GetUser(ctx context.Context, addr string) (*domain.User, error) {
	return s.store.Users.Get(ctx, addr)
}

// UpdateUser edits the caller's own profile.
func (s *UserService) UpdateUser(ctx context.Context, addr, actor string, patch domain.UserPatch) (*domain.User, error) {
	if !domain.SameAddress(addr, actor) {
		return nil, fmt.Errorf("%w: users can only edit their own profile", domain.ErrUnauthorized)
	}
	var user *domain.User
	err := s.store.Transaction(ctx, func(r *repository.Repos) error {
		u, err := r.Users.Get(ctx, addr)
		if err != nil {
			return err
		}
		if patch.Username != nil {
			if strings.TrimSpace(*patch.Username) == "" {
				return fmt.Errorf("%w: username must not be empty", domain.ErrInvalidInput)
			}
			u.Username = strings.TrimSpace(*patch.Username)
		}
		if patch.Email != nil {
			u.Email = *patch.Email
		}
		if patch.Role != nil {
			if !patch.Role.Valid() {
				return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, *patch.Role)
			}
			u.Role = *patch.Role
		}
		if patch.Bio != nil {
			u.Bio = *patch.Bio
		}
		if patch.Skills != nil {
			u.Skills = domain.CleanStrings(patch.Skills)
		}
		if patch.PortfolioURL != nil {
			u.PortfolioURL = *patch.PortfolioURL
		}
		if patch.AvatarURL != nil {
			u.AvatarURL = *patch.AvatarURL
		}
		user = u
		return r.Users.Save(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Stats summarizes a user's marketplace activity.
func (s *UserService) Stats(ctx context.Context, addr string) (*domain.UserStats, error) {
	if _, err := s.store.Users.Get(ctx, addr); err != nil {
		return nil, err
	}
	return s.store.Jobs.Stats(ctx, addr)
}
