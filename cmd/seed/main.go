package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"eventhub/internal/auth"
	"eventhub/internal/config"
	"eventhub/internal/db"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
	"eventhub/internal/repository"
	"eventhub/internal/service"
)

//go:embed sample.json
var sampleData []byte

// SeedData is the document the seed command loads.
type SeedData struct {
	Users []SeedUser `json:"users"`
}

// SeedUser is a user to register together with the events it owns.
type SeedUser struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Events   []SeedEvent `json:"events"`
}

// SeedEvent is one event of a seeded user.
type SeedEvent struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	TotalGuests int      `json:"totalGuests"`
	Category    string   `json:"category"`
	Location    *string  `json:"location"`
	Price       *float64 `json:"price"`
	Images      []string `json:"images"`
}

func main() {
	cfg := config.Load()
	logger := logging.New("seed", cfg.LogLevel, os.Stdout)
	logger.Info("Starting seed script...")

	// Connect to database
	gormDB, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Connected to database")

	// Run migrations to ensure schema is up to date
	if err := db.Migrate(gormDB); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	data, err := loadSeedData(cfg.SeedFile)
	if err != nil {
		logger.Fatalf("Failed to load seed data: %v", err)
	}
	logger.Infof("Loaded %d users", len(data.Users))

	userRepo := repository.NewUserRepository(gormDB)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	authService := service.NewAuthService(userRepo, jwtService, logger)
	eventService := service.NewEventService(repository.NewEventRepository(gormDB), nil, nil, logger)

	users, events, err := seed(context.Background(), authService, eventService, data)
	if err != nil {
		logger.Fatalf("Failed to seed: %v", err)
	}

	logger.Info("Seed completed successfully!")
	logger.Infof("  - New users created: %d", users)
	logger.Infof("  - New events created: %d", events)
}

// loadSeedData reads the seed document from a URL, a file, or the embedded sample when source is empty.
func loadSeedData(source string) (*SeedData, error) {
	var raw []byte
	var err error
	switch {
	case source == "":
		raw = sampleData
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		raw, err = fetch(source)
	default:
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}

	var data SeedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &data, nil
}

func fetch(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch seed data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seed source returned status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// seed registers every user that does not exist yet and creates its events.
// Users that already exist are skipped together with their events, so running
// the command twice does not duplicate data.
func seed(ctx context.Context, auth service.AuthService, events service.EventService, data *SeedData) (users int, created int, err error) {
	for _, u := range data.Users {
		result, err := auth.Register(ctx, u.Username, u.Email, u.Password)
		if errors.Is(err, apperrors.ErrUserAlreadyExists) {
			continue
		}
		if err != nil {
			return users, created, fmt.Errorf("error registering %s: %w", u.Username, err)
		}
		users++

		for _, e := range u.Events {
			_, err := events.Create(ctx, service.CreateEventInput{
				Title:       e.Title,
				Description: e.Description,
				StartDate:   e.StartDate,
				EndDate:     e.EndDate,
				TotalGuests: e.TotalGuests,
				Category:    e.Category,
				Location:    e.Location,
				Price:       e.Price,
				Images:      e.Images,
			}, result.User.ID)
			if err != nil {
				return users, created, fmt.Errorf("error creating event %q: %w", e.Title, err)
			}
			created++
		}
	}
	return users, created, nil
}
