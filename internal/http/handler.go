package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/sti-api/internal/domain"
	"go.ngs.io/sti-api/internal/logging"
	"go.ngs.io/sti-api/internal/usecase"
)

// STIService is the query surface the handlers need.
type STIService interface {
	Runs(ctx context.Context) (*usecase.RunsResponse, error)
	Steps(ctx context.Context, run string) (*usecase.StepsResponse, error)
	Latest(ctx context.Context) (*usecase.StepsResponse, error)
	Grid(ctx context.Context, req usecase.GridRequest) (*usecase.GridResponse, error)
	Summary(ctx context.Context, run, step string) (*usecase.SummaryResponse, error)
	Point(ctx context.Context, run, step string, lat, lon float64) (*usecase.PointResponse, error)
	Source(ctx context.Context, run, step string) (*usecase.SourceResponse, error)
}

var _ STIService = (*usecase.STIUseCase)(nil)

// Handler handles HTTP requests for STI data.
type Handler struct {
	stiUC STIService
}

// NewHandler creates a new HTTP handler.
func NewHandler(stiUC STIService) *Handler {
	return &Handler{
		stiUC: stiUC,
	}
}

// GetRuns handles GET /v1/sti/runs.
func (h *Handler) GetRuns(c *gin.Context) {
	resp, err := h.stiUC.Runs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSteps handles GET /v1/sti/runs/:run/steps.
func (h *Handler) GetSteps(c *gin.Context) {
	resp, err := h.stiUC.Steps(c.Request.Context(), c.Param("run"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetLatest handles GET /v1/sti/latest.
func (h *Handler) GetLatest(c *gin.Context) {
	resp, err := h.stiUC.Latest(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetGrid handles GET /v1/sti/grid.
func (h *Handler) GetGrid(c *gin.Context) {
	run, step, ok := runStep(c)
	if !ok {
		return
	}

	// All four bounds are required.
	var bounds [4]float64
	for i, name := range []string{"lat_min", "lat_max", "lon_min", "lon_max"} {
		v, ok := floatQuery(c, name)
		if !ok {
			return
		}
		bounds[i] = v
	}

	resp, err := h.stiUC.Grid(c.Request.Context(), usecase.GridRequest{
		Run:  run,
		Step: step,
		BBox: domain.BoundingBox{LatMin: bounds[0], LatMax: bounds[1], LonMin: bounds[2], LonMax: bounds[3]},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSummary handles GET /v1/sti/summary.
func (h *Handler) GetSummary(c *gin.Context) {
	run, step, ok := runStep(c)
	if !ok {
		return
	}
	resp, err := h.stiUC.Summary(c.Request.Context(), run, step)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetPoint handles GET /v1/sti/point.
func (h *Handler) GetPoint(c *gin.Context) {
	run, step, ok := runStep(c)
	if !ok {
		return
	}
	lat, ok := floatQuery(c, "lat")
	if !ok {
		return
	}
	lon, ok := floatQuery(c, "lon")
	if !ok {
		return
	}

	resp, err := h.stiUC.Point(c.Request.Context(), run, step, lat, lon)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSource handles GET /v1/sti/source.
func (h *Handler) GetSource(c *gin.Context) {
	run, step, ok := runStep(c)
	if !ok {
		return
	}
	resp, err := h.stiUC.Source(c.Request.Context(), run, step)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// runStep reads the run and step query parameters, rejecting a malformed run
// before anything touches the store.
func runStep(c *gin.Context) (string, string, bool) {
	run := c.Query("run")
	step := c.Query("step")
	if run == "" || step == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run and step parameters are required"})
		return "", "", false
	}
	if err := domain.ValidateRun(run); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return run, step, true
}

func floatQuery(c *gin.Context, name string) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s parameter is required", name)})
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: %v", name, err)})
		return 0, false
	}
	return v, true
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrFormat), errors.Is(err, domain.ErrRange):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrIntegrity):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("path", c.Request.URL.Path).Int("status", status).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
