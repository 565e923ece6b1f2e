package middleware

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"eventhub/internal/auth"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/model"
)

const userContextKey = "user"

// JWT authenticates requests carrying "Authorization: Bearer <token>" and
// stores the validated *auth.Claims in the context.
func JWT(jwtService *auth.JWTService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  userContextKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return jwtService.ValidateToken(token)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
				Error: apperrors.ErrUnauthorized.Error(),
				Code:  "UNAUTHORIZED",
			}).SetInternal(err)
		},
	})
}

// CurrentUser returns the identity of the authenticated caller.
func CurrentUser(c echo.Context) (model.UserSummary, error) {
	claims, ok := c.Get(userContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return model.UserSummary{}, apperrors.ErrUnauthorized
	}
	identity, err := claims.Identity()
	if err != nil {
		return model.UserSummary{}, apperrors.ErrUnauthorized
	}
	return identity, nil
}
