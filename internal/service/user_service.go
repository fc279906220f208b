package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
	"github.com/testschool/assessment-backend/internal/response"
)

// Account errors.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// UserService handles account administration.
type UserService struct {
	userRepo *repository.UserRepository
}

// NewUserService creates a new UserService.
func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Get retrieves a user by id.
func (s *UserService) Get(ctx context.Context, id int) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByEmail retrieves a user by email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Register creates a new unverified student account. The password must
// already be hashed.
func (s *UserService) Register(ctx context.Context, name, email, passwordHash string) (*model.User, error) {
	taken, err := s.userRepo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		Role:         model.RoleStudent,
		PasswordHash: passwordHash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// MarkEmailVerified flips the account's verification flag.
func (s *UserService) MarkEmailVerified(ctx context.Context, id int) error {
	return s.userRepo.MarkEmailVerified(ctx, id)
}

// UpdatePassword replaces the account's password hash.
func (s *UserService) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	return s.userRepo.UpdatePassword(ctx, id, passwordHash)
}

// List retrieves accounts with pagination and optional role/search filters.
func (s *UserService) List(ctx context.Context, page, perPage int, role *model.Role, search string) ([]model.User, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	users, total, err := s.userRepo.List(ctx, page, perPage, role, search)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (int(total) + perPage - 1) / perPage
	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	}
	return users, pagination, nil
}

// UpdateRole changes an account's role.
func (s *UserService) UpdateRole(ctx context.Context, id int, role model.Role) (*model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

// Delete removes an account and its attempts.
func (s *UserService) Delete(ctx context.Context, id int) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.userRepo.Delete(ctx, id)
}
