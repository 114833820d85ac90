// Package routes assembles the HTTP API.
package routes

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/routes/feedback"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/match"
	"github.com/Ramsey-B/fern/pkg/routes/models"
	"github.com/Ramsey-B/fern/pkg/routes/queries"
)

// Dependencies are the services the handlers call into.
type Dependencies struct {
	Queries  queries.Store
	Feedback feedback.Recorder
	Matcher  match.Matcher
	Locker   redis.Locker
	LockTTL  time.Duration
	Registry models.StatusReader
	Results  models.ResultsReader
	Health   *health.Checker
}

// Options configures the server itself.
type Options struct {
	ServiceName  string
	AllowOrigins []string
}

// NewServer returns an echo instance with every route registered.
func NewServer(opts Options, deps Dependencies, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{AllowOrigins: opts.AllowOrigins}))
	e.Use(otelecho.Middleware(opts.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	if deps.Health != nil {
		deps.Health.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	queries.NewHandler(deps.Queries).Register(api.Group("/queries"))
	feedback.NewHandler(deps.Feedback).Register(api.Group("/feedback"))
	match.NewHandler(deps.Matcher, deps.Locker, deps.LockTTL).Register(api.Group("/match"))
	models.NewHandler(deps.Registry, deps.Results).Register(api.Group("/models"))

	return e
}
