package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"eventhub/internal/cache"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
	"eventhub/internal/model"
	"eventhub/internal/repository"
)

const (
	eventCacheTTL = 5 * time.Minute

	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// sortColumns maps the public sortBy values to columns.
var sortColumns = map[string]string{
	"title":       "title",
	"startDate":   "start_date",
	"endDate":     "end_date",
	"totalGuests": "total_guests",
	"category":    "category",
	"createdAt":   "created_at",
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// CreateEventInput is the data needed to create an event.
type CreateEventInput struct {
	Title       string
	Description *string
	StartDate   string
	EndDate     string
	TotalGuests int
	Category    string
	Location    *string
	Price       *float64
	Images      []string
}

// UpdateEventInput is a partial event update. Nil fields are unchanged;
// a non-nil Images replaces the whole list.
type UpdateEventInput struct {
	Title       *string
	Description *string
	StartDate   *string
	EndDate     *string
	TotalGuests *int
	Category    *string
	Location    *string
	Price       *float64
	Images      []string
}

// EventFilter is the listing request as received from the query string.
type EventFilter struct {
	Search    string `query:"search"`
	Category  string `query:"category"`
	StartDate string `query:"startDate"`
	EndDate   string `query:"endDate"`
	MinGuests *int   `query:"minGuests"`
	MaxGuests *int   `query:"maxGuests"`
	Page      *int   `query:"page"`
	Limit     *int   `query:"limit"`
	SortBy    string `query:"sortBy"`
	SortOrder string `query:"sortOrder"`
}

// EventPage is one page of a listing.
type EventPage struct {
	Events []model.Event `json:"events"`
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

// EventService manages events and enforces ownership on mutation.
type EventService interface {
	Create(ctx context.Context, in CreateEventInput, ownerID uint) (*model.Event, error)
	List(ctx context.Context, filter EventFilter) (*EventPage, error)
	Get(ctx context.Context, id uint) (*model.Event, error)
	Update(ctx context.Context, id uint, in UpdateEventInput, actorID uint) (*model.Event, error)
	Delete(ctx context.Context, id uint, actorID uint) error
}

type eventService struct {
	repo   repository.EventRepository
	cache  *cache.Client
	images ImageCleaner
	log    logging.Logger
}

// NewEventService creates the event service. images may be nil, in which
// case replaced images are not cleaned up.
func NewEventService(repo repository.EventRepository, cache *cache.Client, images ImageCleaner, log logging.Logger) EventService {
	return &eventService{repo: repo, cache: cache, images: images, log: log}
}

func eventCacheKey(id uint) string {
	return fmt.Sprintf("event:%d", id)
}

func (s *eventService) Create(ctx context.Context, in CreateEventInput, ownerID uint) (*model.Event, error) {
	start, err := ParseInstant("startDate", in.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseInstant("endDate", in.EndDate)
	if err != nil {
		return nil, err
	}
	if err := checkDateOrder(start, end); err != nil {
		return nil, err
	}

	images := make([]string, len(in.Images))
	copy(images, in.Images)

	event := &model.Event{
		Title:       in.Title,
		Description: in.Description,
		StartDate:   start,
		EndDate:     end,
		TotalGuests: in.TotalGuests,
		Category:    in.Category,
		Location:    in.Location,
		Price:       toPrice(in.Price),
		Images:      images,
		UserID:      ownerID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.log.Infoj(log.JSON{"action": "event_created", "event_id": event.ID, "user_id": ownerID})

	// Reload so the response carries the owner summary.
	if created, err := s.find(ctx, event.ID); err == nil {
		return created, nil
	}
	return event, nil
}

func (s *eventService) List(ctx context.Context, filter EventFilter) (*EventPage, error) {
	q, page, err := buildQuery(filter)
	if err != nil {
		return nil, err
	}

	events, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return &EventPage{Events: events, Total: total, Page: page, Limit: q.Limit}, nil
}

func (s *eventService) Get(ctx context.Context, id uint) (*model.Event, error) {
	if data, _ := s.cache.Get(ctx, eventCacheKey(id)); data != nil {
		var cached model.Event
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	event, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(event); err == nil {
		_ = s.cache.Set(ctx, eventCacheKey(id), payload, eventCacheTTL)
	}
	return event, nil
}

func (s *eventService) Update(ctx context.Context, id uint, in UpdateEventInput, actorID uint) (*model.Event, error) {
	event, err := s.findOwned(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		event.Title = *in.Title
	}
	if in.Description != nil {
		event.Description = in.Description
	}
	if in.StartDate != nil {
		if event.StartDate, err = ParseInstant("startDate", *in.StartDate); err != nil {
			return nil, err
		}
	}
	if in.EndDate != nil {
		if event.EndDate, err = ParseInstant("endDate", *in.EndDate); err != nil {
			return nil, err
		}
	}
	if err := checkDateOrder(event.StartDate, event.EndDate); err != nil {
		return nil, err
	}
	if in.TotalGuests != nil {
		event.TotalGuests = *in.TotalGuests
	}
	if in.Category != nil {
		event.Category = *in.Category
	}
	if in.Location != nil {
		event.Location = in.Location
	}
	if in.Price != nil {
		event.Price = toPrice(in.Price)
	}

	var replaced []string
	if in.Images != nil {
		replaced = dropped(event.Images, in.Images)
		event.Images = append([]string{}, in.Images...)
	}

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	_ = s.cache.Delete(ctx, eventCacheKey(id))
	s.cleanup(ctx, replaced)

	s.log.Infoj(log.JSON{"action": "event_updated", "event_id": id, "user_id": actorID})
	return event, nil
}

func (s *eventService) Delete(ctx context.Context, id uint, actorID uint) error {
	event, err := s.findOwned(ctx, id, actorID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrEventNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	_ = s.cache.Delete(ctx, eventCacheKey(id))
	s.cleanup(ctx, event.Images)

	s.log.Infoj(log.JSON{"action": "event_deleted", "event_id": id, "user_id": actorID})
	return nil
}

func (s *eventService) find(ctx context.Context, id uint) (*model.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return event, nil
}

// findOwned loads the event and hides it from anyone but its owner.
func (s *eventService) findOwned(ctx context.Context, id, actorID uint) (*model.Event, error) {
	event, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !event.OwnedBy(actorID) {
		s.log.Warnj(log.JSON{"action": "event_access_denied", "event_id": id, "user_id": actorID})
		return nil, apperrors.ErrEventNotFound
	}
	return event, nil
}

func (s *eventService) cleanup(ctx context.Context, urls []string) {
	if s.images == nil || len(urls) == 0 {
		return
	}
	s.images.DeleteByURLs(ctx, urls)
}

// buildQuery validates a listing request and resolves its defaults.
func buildQuery(f EventFilter) (repository.EventQuery, int, error) {
	var fields []apperrors.FieldError
	invalid := func(field, msg string) {
		fields = append(fields, apperrors.FieldError{Field: field, Message: msg})
	}

	page, limit := DefaultPage, DefaultLimit
	if f.Page != nil {
		if *f.Page < 1 {
			invalid("page", "must be at least 1")
		}
		page = *f.Page
	}
	if f.Limit != nil {
		if *f.Limit < 1 || *f.Limit > MaxLimit {
			invalid("limit", fmt.Sprintf("must be between 1 and %d", MaxLimit))
		}
		limit = *f.Limit
	}
	// The offset (page-1)*limit must not overflow.
	if page > 1 && limit > 0 && page > math.MaxInt/limit {
		invalid("page", "is too large")
	}

	q := repository.EventQuery{
		Search:     strings.TrimSpace(f.Search),
		Category:   f.Category,
		MinGuests:  f.MinGuests,
		MaxGuests:  f.MaxGuests,
		SortColumn: sortColumns["startDate"],
	}

	if f.SortBy != "" {
		col, ok := sortColumns[f.SortBy]
		if !ok {
			invalid("sortBy", "must be one of title, startDate, endDate, totalGuests, category, createdAt")
		}
		q.SortColumn = col
	}
	switch strings.ToUpper(f.SortOrder) {
	case "", "ASC":
	case "DESC":
		q.Desc = true
	default:
		invalid("sortOrder", "must be ASC or DESC")
	}

	if f.StartDate != "" {
		t, err := ParseInstant("startDate", f.StartDate)
		if err != nil {
			invalid("startDate", "must be a valid date")
		} else {
			q.StartFrom = &t
		}
	}
	if f.EndDate != "" {
		t, err := ParseInstant("endDate", f.EndDate)
		if err != nil {
			invalid("endDate", "must be a valid date")
		} else {
			q.EndBy = &t
		}
	}
	if f.MinGuests != nil && *f.MinGuests < 0 {
		invalid("minGuests", "must not be negative")
	}
	if f.MaxGuests != nil && *f.MaxGuests < 0 {
		invalid("maxGuests", "must not be negative")
	}

	if len(fields) > 0 {
		return repository.EventQuery{}, 0, &apperrors.ValidationError{Fields: fields}
	}

	q.Limit = limit
	q.Offset = (page - 1) * limit
	return q, page, nil
}

// ParseInstant parses an RFC 3339 timestamp or a zone-less date(-time), which is taken as UTC.
func ParseInstant(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperrors.NewValidationError(field, "is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperrors.NewValidationError(field, "must be a valid ISO 8601 date")
}

func checkDateOrder(start, end time.Time) error {
	if !end.After(start) {
		return apperrors.NewValidationError("endDate", "must be after startDate")
	}
	return nil
}

func toPrice(p *float64) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*p).Round(2))
}

// dropped returns the entries of before that are absent from after.
func dropped(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, u := range after {
		keep[u] = struct{}{}
	}
	var out []string
	for _, u := range before {
		if _, ok := keep[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}
