package models

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	fernmodels "github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/registry"
)

// StatusReader reports the model slots on disk.
type StatusReader interface {
	Status(ctx context.Context) (*registry.Status, error)
}

// ResultsReader lists the lifecycle results ledger.
type ResultsReader interface {
	List(ctx context.Context, limit int) ([]fernmodels.ResultsEntry, error)
}

type Handler struct {
	registry StatusReader
	results  ResultsReader
}

func NewHandler(registry StatusReader, results ResultsReader) *Handler {
	return &Handler{registry: registry, results: results}
}

// Register registers model routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.Status)
	g.GET("/results", h.Results)
}

// Status lists the incumbent, the challenger and archived models with their feature lists.
func (h *Handler) Status(c echo.Context) error {
	status, err := h.registry.Status(c.Request().Context())
	if err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, status)
}

// Results lists the most recent validation results, newest first.
func (h *Handler) Results(c echo.Context) error {
	limit := 0
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}

	entries, err := h.results.List(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
