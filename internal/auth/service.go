package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
	cost   int
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, cost: bcrypt.DefaultCost, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, in Credentials) (*User, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	now := s.now().UTC()
	if err := s.repo.TouchLastAccess(ctx, user.ID, now); err != nil {
		s.logger.Warn("touch last access", slog.Int64("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastAccessAt = &now
	}
	return user, nil
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(in); err != nil {
		return nil, err
	}
	role, err := rbac.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.Create(ctx, User{Email: in.Email, Name: in.Name, Role: role, PasswordHash: string(hash), Active: true})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator when the e-mail is unknown.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	_, err := s.Register(ctx, RegisterInput{Email: email, Name: "Administrador", Role: string(rbac.RoleAdmin), Password: password})
	return err
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}
