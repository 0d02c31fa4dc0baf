package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/inkwell-comics/modsvc/internal/store"
	"github.com/inkwell-comics/modsvc/types"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBanned      = errors.New("account banned")
)

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService handles self-service registration and sign-in.
type UserService struct {
	repo     UserRepository
	hashCost int
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, hashCost: bcrypt.DefaultCost}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// Register creates a regular Offline account. Role and status cannot be
// chosen by the caller.
func (s *UserService) Register(ctx context.Context, username, email, name, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hashing password: %w", err)
	}

	created, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        strings.TrimSpace(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hashed),
		Role:         types.RoleUser,
		Status:       types.StatusOffline,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateAccount
		}
		return types.User{}, err
	}
	return created, nil
}

// Authenticate checks a username and password. The password is verified
// before the ban check so a banned status is never revealed to a guesser.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	if user.Status == types.StatusBanned {
		return user, ErrAccountBanned
	}
	return user, nil
}
