package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"eventhub/internal/middleware"
	"eventhub/internal/model"
	"eventhub/internal/service"
)

// UserHandler serves profile management.
type UserHandler struct {
	svc service.UserService
}

// NewUserHandler creates a handler layer.
func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// UpdateUserRequest is a partial profile update.
type UpdateUserRequest struct {
	Username  *string `json:"username" validate:"omitnil,min=3,max=255"`
	Email     *string `json:"email" validate:"omitnil,email,max=255"`
	Password  *string `json:"password" validate:"omitnil,min=8"`
	FirstName *string `json:"firstName" validate:"omitnil,max=100"`
	LastName  *string `json:"lastName" validate:"omitnil,max=100"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        uint       `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName *string    `json:"firstName,omitempty"`
	LastName  *string    `json:"lastName,omitempty"`
	Role      model.Role `json:"role"`
	IsActive  bool       `json:"isActive"`
}

// UpdateUser godoc
// @Summary Update a user profile
// @Description Allowed for the user itself or an admin.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /auth/update/{id} [put]
func (h *UserHandler) UpdateUser(c echo.Context) error {
	actor, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(err)
	}
	id, err := parseID(c)
	if err != nil {
		return respondError(err)
	}

	var req UpdateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.svc.UpdateUser(c.Request().Context(), id, actor.ID, service.UserPatch{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// DeleteUser godoc
// @Summary Delete a user and the events it owns
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /auth/delete/{id} [delete]
func (h *UserHandler) DeleteUser(c echo.Context) error {
	actor, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(err)
	}
	id, err := parseID(c)
	if err != nil {
		return respondError(err)
	}

	if err := h.svc.DeleteUser(c.Request().Context(), id, actor.ID); err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		IsActive:  u.IsActive,
	}
}
