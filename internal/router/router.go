package router

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"eventhub/internal/config"
	"eventhub/internal/handler"
	appmiddleware "eventhub/internal/middleware"
	"eventhub/internal/validation"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Event  *handler.EventHandler
	Upload *handler.UploadHandler
	Health *handler.HealthHandler
}

// Dependencies are the cross-cutting pieces the middleware chain needs.
type Dependencies struct {
	// Auth authenticates the secured routes.
	Auth echo.MiddlewareFunc
	// RateLimit is applied to every route; nil disables it.
	RateLimit echo.MiddlewareFunc
	// RequestLogger is applied to every route; nil disables it.
	RequestLogger echo.MiddlewareFunc
}

// Register wires routes and middleware.
func Register(e *echo.Echo, cfg *config.Config, deps Dependencies, h Handlers) {
	e.Validator = validation.New()
	e.HTTPErrorHandler = appmiddleware.HTTPErrorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	if deps.RequestLogger != nil {
		e.Use(deps.RequestLogger)
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if deps.RateLimit != nil {
		e.Use(deps.RateLimit)
	}

	e.GET("/health", h.Health.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Public routes
	e.POST("/auth/register", h.Auth.Register)
	e.POST("/auth/login", h.Auth.Login)
	e.GET("/events", h.Event.ListEvents)
	e.GET("/events/:id", h.Event.GetEvent)

	e.GET("/uploads/*", h.Upload.Serve, middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))

	// Secured routes (require JWT authentication)
	auth := deps.Auth

	e.GET("/auth/profile", h.Auth.Profile, auth)
	e.PUT("/auth/update/:id", h.User.UpdateUser, auth)
	e.DELETE("/auth/delete/:id", h.User.DeleteUser, auth)

	e.POST("/events", h.Event.CreateEvent, auth)
	e.PUT("/events/:id", h.Event.UpdateEvent, auth)
	e.DELETE("/events/:id", h.Event.DeleteEvent, auth)

	e.POST("/uploads", h.Upload.Upload, auth)
}
