package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventhub/internal/model"
)

// EventQuery is a validated, normalized event listing request.
type EventQuery struct {
	Search    string
	Category  string
	StartFrom *time.Time
	EndBy     *time.Time
	MinGuests *int
	MaxGuests *int

	SortColumn string
	Desc       bool
	Limit      int
	Offset     int
}

// EventRepository defines event persistence operations.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	FindByID(ctx context.Context, id uint) (*model.Event, error)
	// List returns one page of matching events and the total number of matches.
	List(ctx context.Context, q EventQuery) ([]model.Event, int64, error)
	Update(ctx context.Context, event *model.Event) error
	Delete(ctx context.Context, id uint) error
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func withOwner(db *gorm.DB) *gorm.DB {
	return db.Preload("User", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "username", "email")
	})
}

func (r *eventRepository) Create(ctx context.Context, event *model.Event) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(event).Error; err != nil {
		return err
	}
	return nil
}

func (r *eventRepository) FindByID(ctx context.Context, id uint) (*model.Event, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).Scopes(withOwner).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) List(ctx context.Context, q EventQuery) ([]model.Event, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Event{}).Scopes(eventFilters(q)).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	events := make([]model.Event, 0, q.Limit)
	if err := r.db.WithContext(ctx).
		Scopes(eventFilters(q), withOwner).
		Order(clause.OrderByColumn{Column: clause.Column{Name: q.SortColumn}, Desc: q.Desc}).
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *eventRepository) Update(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Omit("User").Save(event).Error
}

func (r *eventRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Event{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// eventFilters ANDs every present filter dimension; only the search term ORs
// across title, description and category.
func eventFilters(q EventQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if q.Search != "" {
			pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
			db = db.Where(
				"(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!' OR LOWER(category) LIKE ? ESCAPE '!')",
				pattern, pattern, pattern,
			)
		}
		if q.StartFrom != nil {
			db = db.Where("start_date >= ?", *q.StartFrom)
		}
		if q.EndBy != nil {
			db = db.Where("end_date <= ?", *q.EndBy)
		}
		if q.Category != "" {
			db = db.Where("category = ?", q.Category)
		}
		if q.MinGuests != nil {
			db = db.Where("total_guests >= ?", *q.MinGuests)
		}
		if q.MaxGuests != nil {
			db = db.Where("total_guests <= ?", *q.MaxGuests)
		}
		return db
	}
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
