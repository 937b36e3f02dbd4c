package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"comfydeps/internal/auth"
	"comfydeps/internal/services"
	"comfydeps/pkg/models"
)

// ResolveRequest is the body of POST /api/v1/resolve.
type ResolveRequest struct {
	// Workflow is the workflow document in either serialization shape.
	Workflow        json.RawMessage                   `json:"workflow"`
	WorkflowName    string                            `json:"workflow_name,omitempty"`
	Snapshot        *models.Snapshot                  `json:"snapshot,omitempty"`
	PullLatestHash  *bool                             `json:"pull_latest_hash,omitempty"`
	IncludeNodeList *bool                             `json:"include_node_list,omitempty"`
	ManualRepos     map[string]string                 `json:"manual_repos,omitempty"`
	ExistingFiles   map[string][]models.FileReference `json:"existing_files,omitempty"`
	Persist         bool                              `json:"persist,omitempty"`
}

// Resolve resolves the dependencies of a workflow
// (POST /api/v1/resolve)
func (h *Handler) Resolve(c echo.Context) error {
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	trimmed := bytes.TrimSpace(req.Workflow)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required field: workflow")
	}

	opts := services.ResolveOptions{
		Snapshot:                req.Snapshot,
		PullLatestHashIfMissing: h.defaults.PullLatestHash,
		IncludeNodeList:         h.defaults.IncludeNodeList,
		ManualRepos:             req.ManualRepos,
		ExistingFiles:           req.ExistingFiles,
		WorkflowName:            req.WorkflowName,
		CreatedBy:               auth.UserFromContext(c.Request().Context()),
		Persist:                 req.Persist,
	}
	if req.PullLatestHash != nil {
		opts.PullLatestHashIfMissing = *req.PullLatestHash
	}
	if req.IncludeNodeList != nil {
		opts.IncludeNodeList = *req.IncludeNodeList
	}

	res, err := h.service.Resolve(c.Request().Context(), req.Workflow, opts)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if req.Persist {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// ListResolutions returns the most recent persisted resolutions
// (GET /api/v1/resolutions)
func (h *Handler) ListResolutions(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = n
	}

	resolutions, err := h.service.ListResolutions(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resolutions)
}

// GetResolution returns one persisted resolution
// (GET /api/v1/resolutions/:id)
func (h *Handler) GetResolution(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "resolution not found")
	}

	res, err := h.service.GetResolution(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
