package repository

import (
	"context"

	"gorm.io/gorm"

	"eventhub/internal/model"
)

// UserRepository defines persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	// FindByUsernameOrEmail returns the first user whose username equals username
	// or whose email equals email.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error)
	// FindTaken returns a user other than excludeID holding username or email.
	// Empty values are not matched.
	FindTaken(ctx context.Context, username, email string, excludeID uint) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	// DeleteWithEvents removes the user and every event it owns in one transaction
	// and returns the removed events.
	DeleteWithEvents(ctx context.Context, id uint) ([]model.Event, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", username, email).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindTaken(ctx context.Context, username, email string, excludeID uint) (*model.User, error) {
	var match string
	var args []interface{}
	switch {
	case username != "" && email != "":
		match, args = "(username = ? OR email = ?)", []interface{}{username, email}
	case username != "":
		match, args = "username = ?", []interface{}{username}
	case email != "":
		match, args = "email = ?", []interface{}{email}
	default:
		return nil, gorm.ErrRecordNotFound
	}

	var user model.User
	if err := r.db.WithContext(ctx).
		Where(match, args...).
		Where("id <> ?", excludeID).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Omit("Events").Save(user).Error
}

func (r *userRepository) DeleteWithEvents(ctx context.Context, id uint) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Find(&events).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.Event{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
