package queries

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Store is the query record repository.
type Store interface {
	Create(ctx context.Context, rec models.QueryRecord) (*models.QueryRecord, error)
	GetByID(ctx context.Context, id string) (*models.QueryRecord, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Register registers query record routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
}

// Create starts tracking a project.
func (h *Handler) Create(c echo.Context) error {
	req, err := utils.BindRequest[models.CreateQueryRecordRequest](c)
	if err != nil {
		return err
	}

	rec, err := h.store.Create(c.Request().Context(), req.ToRecord())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	rec, err := h.store.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if rec == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "query record %s does not exist", id)
	}
	return c.JSON(http.StatusOK, rec)
}

// Delete removes a query record together with its feedback.
func (h *Handler) Delete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
