// Package api contains the HTTP handlers for the resolution REST API
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"comfydeps/internal/registry"
	"comfydeps/internal/repository"
	"comfydeps/internal/services"
	"comfydeps/internal/workflow"
	"comfydeps/pkg/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// ResolutionService is the part of services.ResolutionService the API uses.
type ResolutionService interface {
	Resolve(ctx context.Context, data []byte, opts services.ResolveOptions) (*models.Resolution, error)
	GetResolution(ctx context.Context, id string) (*models.Resolution, error)
	ListResolutions(ctx context.Context, limit int) ([]*models.Resolution, error)
	Checks(ctx context.Context) map[string]string
}

// Logger is the logging interface used by the handlers.
type Logger interface {
	Error(msg string, args ...any)
}

// Defaults apply when a request leaves an option unset.
type Defaults struct {
	PullLatestHash  bool
	IncludeNodeList bool
}

// Handler contains HTTP handlers for the resolution REST API
type Handler struct {
	service  ResolutionService
	defaults Defaults
	logger   Logger
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(service ResolutionService, defaults Defaults, logger Logger) *Handler {
	return &Handler{service: service, defaults: defaults, logger: logger}
}

// RegisterHandlers mounts the versioned API routes on g.
func RegisterHandlers(g *echo.Group, h *Handler) {
	g.POST("/resolve", h.Resolve)
	g.GET("/resolutions", h.ListResolutions)
	g.GET("/resolutions/:id", h.GetResolution)
}

// HandleHealth returns service health. It always answers 200; dependency
// state is reported in checks.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthStatus{
		Status:    "ok",
		Service:   "comfydeps",
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Checks:    h.service.Checks(c.Request().Context()),
	})
}

// writeProblem writes an RFC 7807 Problem Details JSON error response
func writeProblem(c echo.Context, status int, detail string) error {
	problem := models.ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	body, err := json.Marshal(problem)
	if err != nil {
		return err
	}
	return c.Blob(status, "application/problem+json", body)
}

// ErrorHandler renders every error leaving a handler as a problem document.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, detail := statusOf(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Request().URL.Path, "status", status, "error", err)
		}
		if werr := writeProblem(c, status, detail); werr != nil {
			logger.Error("failed to write error response", "error", werr)
		}
	}
}

// statusOf maps domain errors onto HTTP statuses.
func statusOf(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	case errors.Is(err, workflow.ErrMalformed):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, registry.ErrUnavailable):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "resolution not found"
	case errors.Is(err, services.ErrNoStore):
		return http.StatusServiceUnavailable, "persistence is not enabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "resolution timed out"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
