package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"
	"gorm.io/gorm"

	"eventhub/internal/cache"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
	"eventhub/internal/model"
	"eventhub/internal/repository"
)

// UserPatch holds the profile fields to change; nil fields are left alone.
type UserPatch struct {
	Username  *string
	Email     *string
	Password  *string
	FirstName *string
	LastName  *string
}

// UserService exposes profile management.
type UserService interface {
	// UpdateUser applies patch to user id on behalf of actorID.
	UpdateUser(ctx context.Context, id, actorID uint, patch UserPatch) (*model.User, error)
	// DeleteUser removes user id and the events it owns on behalf of actorID.
	DeleteUser(ctx context.Context, id, actorID uint) error
}

type userService struct {
	repo   repository.UserRepository
	cache  *cache.Client
	images ImageCleaner
	log    logging.Logger
}

// NewUserService builds a UserService. The cache is used to evict events removed
// together with their owner.
func NewUserService(repo repository.UserRepository, cache *cache.Client, images ImageCleaner, log logging.Logger) UserService {
	return &userService{repo: repo, cache: cache, images: images, log: log}
}

func (s *userService) UpdateUser(ctx context.Context, id, actorID uint, patch UserPatch) (*model.User, error) {
	user, err := s.loadManaged(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	var username, email string
	if patch.Username != nil && *patch.Username != user.Username {
		username = *patch.Username
	}
	if patch.Email != nil && *patch.Email != user.Email {
		email = *patch.Email
	}
	if username != "" || email != "" {
		_, err := s.repo.FindTaken(ctx, username, email, user.ID)
		if err == nil {
			return nil, apperrors.ErrUserAlreadyExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("check user existence: %w", err)
		}
		if username != "" {
			user.Username = username
		}
		if email != "" {
			user.Email = email
		}
	}
	if patch.Password != nil {
		hashed, err := hashPassword(*patch.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hashed
	}
	if patch.FirstName != nil {
		user.FirstName = patch.FirstName
	}
	if patch.LastName != nil {
		user.LastName = patch.LastName
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.log.Infoj(log.JSON{"action": "user_updated", "user_id": id, "actor_id": actorID, "password_changed": patch.Password != nil})
	return user, nil
}

func (s *userService) DeleteUser(ctx context.Context, id, actorID uint) error {
	if _, err := s.loadManaged(ctx, id, actorID); err != nil {
		return err
	}

	events, err := s.repo.DeleteWithEvents(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	for _, event := range events {
		_ = s.cache.Delete(ctx, eventCacheKey(event.ID))
		if s.images != nil {
			s.images.DeleteByURLs(ctx, event.Images)
		}
	}

	s.log.Infoj(log.JSON{"action": "user_deleted", "user_id": id, "actor_id": actorID, "events_deleted": len(events)})
	return nil
}

// loadManaged returns user id if actorID may manage it: the user itself or an admin.
// Anything else is reported as not found.
func (s *userService) loadManaged(ctx context.Context, id, actorID uint) (*model.User, error) {
	if id != actorID {
		actor, err := s.repo.FindByID(ctx, actorID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find actor: %w", err)
		}
		if actor == nil || actor.Role != model.RoleAdmin {
			s.log.Warnj(log.JSON{"action": "user_access_denied", "user_id": id, "actor_id": actorID})
			return nil, apperrors.ErrUserNotFound
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
