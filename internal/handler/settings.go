package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/model"
)

// SettingsStore is implemented by *repository.SettingsRepo.
type SettingsStore interface {
	SettingsReader
	Apply(ctx context.Context, userID string, p model.SettingsPatch) (model.Settings, error)
}

// SettingsHandler serves per-user preferences.
type SettingsHandler struct {
	Settings SettingsStore
}

// NewSettingsHandler panics when store is nil.
func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	if store == nil {
		panic("nil store passed to NewSettingsHandler")
	}
	return &SettingsHandler{Settings: store}
}

// Get handles GET /v1/settings.  Users without stored settings get the
// defaults.
func (h *SettingsHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	s, err := h.Settings.Get(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Update handles PATCH /v1/settings.  Absent fields are left unchanged;
// an empty string clears the template or timezone.
func (h *SettingsHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var patch model.SettingsPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid request body")
	}
	s, err := h.Settings.Apply(c.Request().Context(), userID, patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}
