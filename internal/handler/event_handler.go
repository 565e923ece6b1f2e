package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"eventhub/internal/errors"
	"eventhub/internal/middleware"
	"eventhub/internal/service"
)

// EventHandler serves the events API.
type EventHandler struct {
	events  service.EventService
	uploads service.UploadService
	stager  stager
}

// NewEventHandler creates an event handler. Attached images are staged in tempDir.
func NewEventHandler(events service.EventService, uploads service.UploadService, tempDir string) *EventHandler {
	return &EventHandler{events: events, uploads: uploads, stager: stager{tempDir: tempDir}}
}

// CreateEventRequest is the body of POST /events.
type CreateEventRequest struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Description *string  `json:"description"`
	StartDate   string   `json:"startDate" validate:"required"`
	EndDate     string   `json:"endDate" validate:"required"`
	TotalGuests int      `json:"totalGuests" validate:"min=1"`
	Category    string   `json:"category" validate:"required,max=100"`
	Location    *string  `json:"location" validate:"omitnil,max=255"`
	Price       *float64 `json:"price" validate:"omitnil,gte=0"`
	Images      []string `json:"images" validate:"omitempty,max=10,dive,required,max=2048"`
}

// UpdateEventRequest is the body of PUT /events/{id}; absent fields are unchanged.
type UpdateEventRequest struct {
	Title       *string  `json:"title" validate:"omitnil,min=1,max=255"`
	Description *string  `json:"description"`
	StartDate   *string  `json:"startDate" validate:"omitnil,min=1"`
	EndDate     *string  `json:"endDate" validate:"omitnil,min=1"`
	TotalGuests *int     `json:"totalGuests" validate:"omitnil,min=1"`
	Category    *string  `json:"category" validate:"omitnil,min=1,max=100"`
	Location    *string  `json:"location" validate:"omitnil,max=255"`
	Price       *float64 `json:"price" validate:"omitnil,gte=0"`
	Images      []string `json:"images" validate:"omitempty,max=10,dive,required,max=2048"`
}

// CreateEvent godoc
// @Summary Create an event
// @Description Accepts JSON, or multipart/form-data with up to 10 "images" files.
// @Tags events
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param request body CreateEventRequest true "Event data"
// @Success 201 {object} model.Event
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /events [post]
func (h *EventHandler) CreateEvent(c echo.Context) error {
	actor, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(err)
	}

	var req CreateEventRequest
	var files []*multipart.FileHeader
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return invalidBody(err)
		}
		defer form.RemoveAll()

		partial, err := eventFromForm(form)
		if err != nil {
			return respondError(err)
		}
		req = partial.toCreate()
		files = form.File["images"]
	} else if err := c.Bind(&req); err != nil {
		return invalidBody(err)
	}
	if err := c.Validate(&req); err != nil {
		return respondError(err)
	}
	if err := checkImageCount(req.Images, files); err != nil {
		return respondError(err)
	}

	uploaded, err := h.storeImages(c, files)
	if err != nil {
		return respondError(err)
	}
	req.Images = append(req.Images, uploaded...)

	event, err := h.events.Create(c.Request().Context(), service.CreateEventInput{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		TotalGuests: req.TotalGuests,
		Category:    req.Category,
		Location:    req.Location,
		Price:       req.Price,
		Images:      req.Images,
	}, actor.ID)
	if err != nil {
		h.uploads.DeleteByURLs(c.Request().Context(), uploaded)
		return respondError(err)
	}
	return c.JSON(http.StatusCreated, event)
}

// checkImageCount caps linked and attached images together, before anything is stored.
func checkImageCount(urls []string, files []*multipart.FileHeader) error {
	if len(urls)+len(files) > service.MaxFiles {
		return errors.NewValidationError("images", "must contain at most "+strconv.Itoa(service.MaxFiles)+" images")
	}
	return nil
}

// ListEvents godoc
// @Summary List events
// @Tags events
// @Produce json
// @Param search query string false "Substring of title, description or category"
// @Param category query string false "Exact category"
// @Param startDate query string false "Events starting at or after"
// @Param endDate query string false "Events ending at or before"
// @Param minGuests query int false "Minimum total guests"
// @Param maxGuests query int false "Maximum total guests"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size (1-100)" default(10)
// @Param sortBy query string false "title, startDate, endDate, totalGuests, category or createdAt" default(startDate)
// @Param sortOrder query string false "ASC or DESC" default(ASC)
// @Success 200 {object} service.EventPage
// @Failure 400 {object} errors.ErrorResponse
// @Router /events [get]
func (h *EventHandler) ListEvents(c echo.Context) error {
	var filter service.EventFilter
	if err := c.Bind(&filter); err != nil {
		return respondError(errors.NewValidationError("query", "contains an invalid number"))
	}

	page, err := h.events.List(c.Request().Context(), filter)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, page)
}

// GetEvent godoc
// @Summary Get an event
// @Tags events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} model.Event
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /events/{id} [get]
func (h *EventHandler) GetEvent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(err)
	}

	event, err := h.events.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, event)
}

// UpdateEvent godoc
// @Summary Update an event
// @Description Owner only. Accepts JSON or multipart/form-data; uploaded "images" replace the image list.
// @Tags events
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Param request body UpdateEventRequest true "Fields to change"
// @Success 200 {object} model.Event
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /events/{id} [put]
func (h *EventHandler) UpdateEvent(c echo.Context) error {
	actor, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(err)
	}
	id, err := parseID(c)
	if err != nil {
		return respondError(err)
	}

	var req UpdateEventRequest
	var files []*multipart.FileHeader
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return invalidBody(err)
		}
		defer form.RemoveAll()

		if req, err = eventFromForm(form); err != nil {
			return respondError(err)
		}
		files = form.File["images"]
	} else if err := c.Bind(&req); err != nil {
		return invalidBody(err)
	}
	if err := c.Validate(&req); err != nil {
		return respondError(err)
	}
	if err := checkImageCount(req.Images, files); err != nil {
		return respondError(err)
	}

	uploaded, err := h.storeImages(c, files)
	if err != nil {
		return respondError(err)
	}
	if len(uploaded) > 0 {
		req.Images = append(req.Images, uploaded...)
	}

	event, err := h.events.Update(c.Request().Context(), id, service.UpdateEventInput{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		TotalGuests: req.TotalGuests,
		Category:    req.Category,
		Location:    req.Location,
		Price:       req.Price,
		Images:      req.Images,
	}, actor.ID)
	if err != nil {
		h.uploads.DeleteByURLs(c.Request().Context(), uploaded)
		return respondError(err)
	}
	return c.JSON(http.StatusOK, event)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param id path int true "Event ID"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /events/{id} [delete]
func (h *EventHandler) DeleteEvent(c echo.Context) error {
	actor, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(err)
	}
	id, err := parseID(c)
	if err != nil {
		return respondError(err)
	}

	if err := h.events.Delete(c.Request().Context(), id, actor.ID); err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Event deleted successfully"})
}

// storeImages runs attached files through the upload pipeline and returns their URLs.
// Files stored before a failure are removed again so no orphan is left.
func (h *EventHandler) storeImages(c echo.Context, headers []*multipart.FileHeader) ([]string, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	files, err := h.stager.stage(headers)
	if err != nil {
		return nil, err
	}

	stored, err := h.uploads.UploadAll(c.Request().Context(), files)
	urls := make([]string, 0, len(stored))
	for _, f := range stored {
		urls = append(urls, f.URL)
	}
	if err != nil {
		h.uploads.DeleteByURLs(c.Request().Context(), urls)
		return nil, err
	}
	return urls, nil
}

// eventFromForm reads event fields from multipart text values. Only fields
// present in the form are set.
func eventFromForm(form *multipart.Form) (UpdateEventRequest, error) {
	req := UpdateEventRequest{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
		StartDate:   formValue(form, "startDate"),
		EndDate:     formValue(form, "endDate"),
		Category:    formValue(form, "category"),
		Location:    formValue(form, "location"),
	}
	if urls, ok := form.Value["images"]; ok {
		req.Images = append([]string{}, urls...)
	}

	var invalid []errors.FieldError
	if v := formValue(form, "totalGuests"); v != nil {
		n, err := strconv.Atoi(strings.TrimSpace(*v))
		if err != nil {
			invalid = append(invalid, errors.FieldError{Field: "totalGuests", Message: "must be an integer"})
		} else {
			req.TotalGuests = &n
		}
	}
	if v := formValue(form, "price"); v != nil && strings.TrimSpace(*v) != "" {
		p, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
		if err != nil {
			invalid = append(invalid, errors.FieldError{Field: "price", Message: "must be a number"})
		} else {
			req.Price = &p
		}
	}
	if len(invalid) > 0 {
		return req, &errors.ValidationError{Fields: invalid}
	}
	return req, nil
}

func (r UpdateEventRequest) toCreate() CreateEventRequest {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	out := CreateEventRequest{
		Title:       deref(r.Title),
		Description: r.Description,
		StartDate:   deref(r.StartDate),
		EndDate:     deref(r.EndDate),
		Category:    deref(r.Category),
		Location:    r.Location,
		Price:       r.Price,
		Images:      r.Images,
	}
	if r.TotalGuests != nil {
		out.TotalGuests = *r.TotalGuests
	}
	return out
}
