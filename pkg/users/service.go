// Package users manages accounts: creation, lookup, global role changes and
// deactivation. Deactivation is delegated to the membership manager because
// it rewrites team membership.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/auth"
	"github.com/tendant/simple-team-slim/pkg/authz"
	"github.com/tendant/simple-team-slim/pkg/domain"
	"github.com/tendant/simple-team-slim/pkg/membership"
	"github.com/tendant/simple-team-slim/pkg/repository"
)

const reasonViewUser = "You can only view your own account"

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Service manages user accounts.
type Service struct {
	users   repository.UserStore
	manager *membership.Manager
	emitter activity.Emitter
	cache   membership.PrincipalInvalidator
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates a user service. cache may be nil.
func NewService(users repository.UserStore, manager *membership.Manager, emitter activity.Emitter, cache membership.PrincipalInvalidator, log *logger.Logger) *Service {
	if emitter == nil {
		emitter = activity.Discard{}
	}
	return &Service{
		users:   users,
		manager: manager,
		emitter: emitter,
		cache:   cache,
		log:     log.Named("users"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput is the data for a new account. Role defaults to MEMBER.
type CreateInput struct {
	Email string
	Name  string
	Role  string
}

// Create adds an active account. Admin only.
func (s *Service) Create(ctx context.Context, p domain.Principal, in CreateInput) (*domain.User, error) {
	if err := authz.System(p, authz.CreateUser).Err(); err != nil {
		return nil, err
	}

	email := auth.NormalizeEmail(in.Email)
	if err := auth.ValidateEmail(email); err != nil {
		return nil, domain.ErrValidation("%s", err.Error())
	}
	name, err := auth.CleanName("name", in.Name)
	if err != nil {
		return nil, domain.ErrValidation("%s", err.Error())
	}
	role := domain.RoleMember
	if in.Role != "" {
		if role, err = domain.ParseRole(in.Role); err != nil {
			return nil, domain.ErrValidation("%s", err.Error())
		}
	}

	now := s.now()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Role:      role,
		Status:    domain.UserStatusActive,
		Teams:     []uuid.UUID{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, activity.New(uuid.Nil, p.UserID, domain.ActivityUserCreated,
		fmt.Sprintf("User %s created", user.Email), user.ID.String()))
	return user, nil
}

// Get returns an account. Users may read their own; admins may read any.
func (s *Service) Get(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.User, error) {
	if !p.IsActive() {
		return nil, domain.ErrForbidden(authz.ReasonInactive)
	}
	if p.UserID != id && !p.IsAdmin() {
		return nil, domain.ErrForbidden(reasonViewUser)
	}
	return s.users.GetByID(ctx, id)
}

// List pages through every account. Admin only.
func (s *Service) List(ctx context.Context, p domain.Principal, opts repository.ListOptions) ([]*domain.User, error) {
	if err := authz.System(p, authz.ViewAllUsers).Err(); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultPageSize
	}
	opts.Limit = min(opts.Limit, maxPageSize)
	return s.users.List(ctx, opts)
}

// ChangeRole sets a user's global role. Admins cannot change their own.
// Existing team memberships and in-team roles are left as they are.
func (s *Service) ChangeRole(ctx context.Context, p domain.Principal, id uuid.UUID, roleName string) (*domain.User, error) {
	if err := authz.System(p, authz.ChangeUserRole).Err(); err != nil {
		return nil, err
	}
	if err := authz.CheckSelfProtection(p, id, authz.ChangeUserRole); err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(roleName)
	if err != nil {
		return nil, domain.ErrValidation("%s", err.Error())
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}
	previous := user.Role
	if err := s.users.SetRole(ctx, id, role); err != nil {
		return nil, err
	}
	user.Role = role
	if s.cache != nil {
		// A stale entry expires on its own; the write already succeeded.
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.log.WithContext(ctx).Warn("failed to invalidate cached principal", "user_id", id, "error", err)
		}
	}
	s.emitter.Emit(ctx, activity.New(uuid.Nil, p.UserID, domain.ActivityUserRoleChanged,
		fmt.Sprintf("Role of %s changed from %s to %s", user.Email, previous, role), id.String()))
	return user, nil
}

// Deactivate marks the account inactive and removes it from every team.
func (s *Service) Deactivate(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.User, error) {
	return s.manager.DeactivateUser(ctx, p, id)
}
