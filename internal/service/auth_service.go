package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/labstack/gommon/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"eventhub/internal/auth"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
	"eventhub/internal/model"
	"eventhub/internal/repository"
)

const bcryptCost = 10

// AuthResult is returned by register and login.
type AuthResult struct {
	AccessToken string            `json:"accessToken"`
	User        model.UserSummary `json:"user"`
}

// AuthService handles authentication operations.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*AuthResult, error)
	// Login accepts either the username or the email in the identifier slot.
	Login(ctx context.Context, identifier, password string) (*AuthResult, error)
	IssueToken(user *model.User) (string, error)
}

type authService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
	log        logging.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService, log logging.Logger) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtService: jwtService,
		log:        log,
	}
}

// Register creates a new user with hashed password.
func (s *authService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	existing, err := s.userRepo.FindByUsernameOrEmail(ctx, username, email)
	if err == nil && existing != nil {
		return nil, apperrors.ErrUserAlreadyExists
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// A concurrent registration can win the race past the lookup above.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Infoj(log.JSON{"action": "user_registered", "user_id": user.ID, "username": user.Username})
	return s.result(user)
}

// Login authenticates a user by username or email.
func (s *authService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	user, err := s.userRepo.FindByUsernameOrEmail(ctx, identifier, identifier)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		// Spend the same time as a real comparison so unknown accounts are not distinguishable.
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		s.log.Warnj(log.JSON{"action": "login_failed", "reason": "unknown_user"})
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Warnj(log.JSON{"action": "login_failed", "reason": "bad_password", "user_id": user.ID})
		return nil, apperrors.ErrInvalidCredentials
	}

	return s.result(user)
}

// IssueToken signs a bearer token carrying the user's id, username and email.
func (s *authService) IssueToken(user *model.User) (string, error) {
	token, err := s.jwtService.GenerateToken(user.Summary())
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return token, nil
}

func (s *authService) result(user *model.User) (*AuthResult, error) {
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{AccessToken: token, User: user.Summary()}, nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	})
	return dummy
}
