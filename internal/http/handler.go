// Package http exposes point forecasts over a gin JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go.ngs.io/pointcast/internal/domain"
	"go.ngs.io/pointcast/internal/usecase"
)

// MaxBatchPoints bounds the size of a POST /v1/forecast/batch request.
const MaxBatchPoints = 1000

// BatchRunner runs a list of points.
type BatchRunner interface {
	Run(ctx context.Context, points []domain.QueryPoint, vars []string) (*usecase.BatchResult, error)
}

// Handler handles HTTP requests for point forecasts.
type Handler struct {
	estimator usecase.PointEstimator
	batch     BatchRunner
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(estimator usecase.PointEstimator, batch BatchRunner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{estimator: estimator, batch: batch, logger: logger}
}

// RowResponse is one estimated point.
type RowResponse struct {
	Lat    float64            `json:"lat"`
	Lon    float64            `json:"lon"`
	Alt    float64            `json:"alt"`
	Time   string             `json:"time"`
	Level  int                `json:"level"`
	Model  string             `json:"model"`
	Values map[string]float64 `json:"values"`
}

// FailureResponse is one failed point of a batch.
type FailureResponse struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// BatchRequest is the body of POST /v1/forecast/batch.
type BatchRequest struct {
	Points    []domain.QueryPoint `json:"points"`
	Variables []string            `json:"variables"`
}

// BatchResponse is the result of POST /v1/forecast/batch.
type BatchResponse struct {
	RunID     string            `json:"run_id"`
	Variables []string          `json:"variables"`
	Rows      []RowResponse     `json:"rows"`
	Failures  []FailureResponse `json:"failures"`
}

func toRowResponse(row domain.ResultRow) RowResponse {
	values := make(map[string]float64, len(row.Variables))
	for i, v := range row.Variables {
		values[v] = row.Values[i]
	}
	return RowResponse{
		Lat:    row.Point.Lat,
		Lon:    row.Point.Lon,
		Alt:    row.Point.Alt,
		Time:   row.Time.UTC().Format(time.RFC3339),
		Level:  row.Level,
		Model:  row.Model,
		Values: values,
	}
}

// StatusFor maps an estimation error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPoint):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOutOfForecastWindow),
		errors.Is(err, domain.ErrLevelResolution),
		errors.Is(err, domain.ErrOutsideDomain):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFetchExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GetPoint handles GET /v1/forecast/point.
func (h *Handler) GetPoint(c *gin.Context) {
	p, err := parsePoint(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var vars []string
	if s := c.Query("vars"); s != "" {
		vars = strings.Split(s, ",")
	}

	row, err := h.estimator.Estimate(c.Request.Context(), 0, p, vars)
	if err != nil {
		c.JSON(StatusFor(err), gin.H{"error": err.Error(), "kind": domain.ErrorKind(err)})
		return
	}
	c.JSON(http.StatusOK, toRowResponse(row))
}

func parsePoint(c *gin.Context) (domain.QueryPoint, error) {
	var p domain.QueryPoint
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"lat", &p.Lat}, {"lon", &p.Lon}, {"alt", &p.Alt}} {
		s := c.Query(f.name)
		if s == "" {
			return p, fmt.Errorf("%s parameter is required", f.name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %v", f.name, err)
		}
		*f.dst = v
	}
	if s := c.Query("time"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return p, fmt.Errorf("invalid time (expected RFC3339): %v", err)
		}
		t = t.UTC()
		p.Time = &t
	}
	p.AltitudeRef = domain.AltitudeReference(strings.ToLower(c.Query("altitude_ref")))
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// PostBatch handles POST /v1/forecast/batch.
func (h *Handler) PostBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if len(req.Points) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "points must not be empty"})
		return
	}
	if len(req.Points) > MaxBatchPoints {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d points per request", MaxBatchPoints)})
		return
	}

	res, err := h.batch.Run(c.Request.Context(), req.Points, req.Variables)
	if err != nil {
		h.logger.Warn("batch aborted", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	resp := BatchResponse{
		RunID:     res.RunID.String(),
		Variables: res.Variables,
		Rows:      make([]RowResponse, len(res.Rows)),
		Failures:  make([]FailureResponse, len(res.Failures)),
	}
	for i, row := range res.Rows {
		resp.Rows[i] = toRowResponse(row)
	}
	for i, f := range res.Failures {
		resp.Failures[i] = FailureResponse{Index: f.Index, Kind: f.Kind(), Error: f.Err.Error()}
	}
	c.JSON(http.StatusOK, resp)
}

// ModelResponse describes one model family.
type ModelResponse struct {
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	Area         string `json:"area"`
	FullLevels   int    `json:"full_levels"`
	HalfLevels   int    `json:"half_levels"`
	MaxLeadHours int    `json:"max_lead_hours"`
}

// GetModels handles GET /v1/models.
func (h *Handler) GetModels(c *gin.Context) {
	models := make([]ModelResponse, 0, len(domain.Families))
	for _, d := range []domain.Domain{domain.DomainRegional, domain.DomainContinental} {
		f := domain.Families[d]
		models = append(models, ModelResponse{
			Name:         f.Name,
			Domain:       string(d),
			Area:         f.Area,
			FullLevels:   f.FullLevels,
			HalfLevels:   f.HalfLevels(),
			MaxLeadHours: f.MaxLeadHours,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"models":    models,
		"variables": domain.DefaultVariables,
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
