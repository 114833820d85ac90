package match

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Matcher runs matching passes.
type Matcher interface {
	Match(ctx context.Context, req matching.MatchRequest) (*matching.MatchResults, error)
	MatchOne(ctx context.Context, req matching.MatchRequest) (*matching.QueryOutcome, error)
}

// Request triggers a match run. Omitting query_ids matches every open query; an empty list
// matches nothing.
type Request struct {
	QueryIDs   []string `json:"query_ids"`
	Since      string   `json:"since" validate:"omitempty,datetime=2006-01-02"`
	Until      string   `json:"until" validate:"omitempty,datetime=2006-01-02"`
	FullRescan bool     `json:"full_rescan"`
	DryRun     bool     `json:"dry_run"`
}

func (r Request) matchRequest() matching.MatchRequest {
	req := matching.MatchRequest{
		Since:      r.Since,
		Until:      r.Until,
		FullRescan: r.FullRescan,
		DryRun:     r.DryRun,
	}
	if r.QueryIDs != nil {
		req.Queries = matching.QueryIDs(r.QueryIDs...)
	}
	return req
}

type Handler struct {
	matcher Matcher
	locker  redis.Locker
	lockTTL time.Duration
}

func NewHandler(matcher Matcher, locker redis.Locker, lockTTL time.Duration) *Handler {
	return &Handler{matcher: matcher, locker: locker, lockTTL: lockTTL}
}

// Register registers match routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Run)
	g.POST("/:query_id", h.RunOne)
}

// Run matches the selected queries and returns the decision table.
func (h *Handler) Run(c echo.Context) error {
	req, err := utils.BindRequest[Request](c)
	if err != nil {
		return err
	}

	var results *matching.MatchResults
	err = h.withLock(c.Request().Context(), func(ctx context.Context) error {
		results, err = h.matcher.Match(ctx, req.matchRequest())
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}

// RunOne matches a single query against the posting window.
func (h *Handler) RunOne(c echo.Context) error {
	req, err := utils.BindRequest[Request](c)
	if err != nil {
		return err
	}
	req.QueryIDs = []string{c.Param("query_id")}

	var outcome *matching.QueryOutcome
	err = h.withLock(c.Request().Context(), func(ctx context.Context) error {
		outcome, err = h.matcher.MatchOne(ctx, req.matchRequest())
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	err := redis.WithLock(ctx, h.locker, redis.MatchLock, h.lockTTL, fn)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return httperror.NewHTTPError(http.StatusConflict, "a match run is already in progress")
	}
	return err
}
