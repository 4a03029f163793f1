package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carelens-ai/platform/pkg/common/models"
)

const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleClinician = "clinician"
)

var (
	ErrBootstrapNotAllowed = errors.New("platform already bootstrapped")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

// Service manages clinician accounts. Bootstrap creates the first clinic
// and its owner; afterwards only owners and admins can register accounts.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Bootstrap(ctx context.Context, req models.BootstrapRequest) (models.Clinic, models.User, error) {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return models.Clinic{}, models.User{}, err
	}
	if count > 0 {
		return models.Clinic{}, models.User{}, ErrBootstrapNotAllowed
	}
	if req.ClinicName == "" || req.ClinicSlug == "" {
		return models.Clinic{}, models.User{}, fmt.Errorf("clinic name and slug required")
	}
	if req.AdminEmail == "" || req.AdminPassword == "" {
		return models.Clinic{}, models.User{}, fmt.Errorf("admin email and password required")
	}

	clinic, err := s.repo.CreateClinic(ctx, strings.TrimSpace(req.ClinicName), strings.TrimSpace(req.ClinicSlug))
	if err != nil {
		return models.Clinic{}, models.User{}, err
	}

	user, err := s.createUser(ctx, clinic.ID, req.AdminEmail, req.AdminName, RoleOwner, req.AdminPassword)
	if err != nil {
		return models.Clinic{}, models.User{}, err
	}
	return clinic, user, nil
}

func (s *Service) createUser(ctx context.Context, clinicID uuid.UUID, email, name, role, password string) (models.User, error) {
	if password == "" {
		return models.User{}, fmt.Errorf("password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	return s.repo.CreateUser(ctx, CreateUserInput{
		ClinicID:     clinicID,
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: string(hash),
	})
}

func (s *Service) RegisterUser(ctx context.Context, actor models.User, req models.RegisterUserRequest) (models.User, error) {
	if actor.Role != RoleOwner && actor.Role != RoleAdmin {
		return models.User{}, fmt.Errorf("insufficient permissions")
	}
	if req.ClinicID == uuid.Nil {
		req.ClinicID = actor.ClinicID
	}
	role := req.Role
	if role == "" {
		role = RoleClinician
	}
	return s.createUser(ctx, req.ClinicID, req.Email, req.Name, role, req.Password)
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}

	hash, err := s.repo.GetPasswordHash(ctx, user.ID)
	if err != nil {
		return models.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}
