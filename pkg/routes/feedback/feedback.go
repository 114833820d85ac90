package feedback

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Recorder is the feedback ledger.
type Recorder interface {
	Record(ctx context.Context, rec models.FeedbackRecord) error
	List(ctx context.Context, queryID string) ([]models.FeedbackRecord, error)
}

type Handler struct {
	ledger Recorder
}

func NewHandler(ledger Recorder) *Handler {
	return &Handler{ledger: ledger}
}

// Register registers feedback routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Record)
	g.GET("/:query_id", h.List)
}

// Record stores a confirmed or denied match. A confirmation closes the query.
func (h *Handler) Record(c echo.Context) error {
	rec, err := utils.BindRequest[models.FeedbackRecord](c)
	if err != nil {
		return err
	}

	if err := h.ledger.Record(c.Request().Context(), rec); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "recorded"})
}

func (h *Handler) List(c echo.Context) error {
	rows, err := h.ledger.List(c.Request().Context(), c.Param("query_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}
