// Package middleware exposes the classification pipeline over HTTP (gin) and
// gRPC.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/pipeline"
)

// RequestRecorder counts handled requests. *metrics.Collector implements it.
type RequestRecorder interface {
	Request(surface, status string)
}

// HTTPConfig configures the HTTP API
type HTTPConfig struct {
	// Header extraction
	TenantIDHeader  string `json:"tenant_id_header"`
	RequestIDHeader string `json:"request_id_header"`

	// MaxBodyBytes bounds request bodies. 0 disables the limit.
	MaxBodyBytes int64 `json:"max_body_bytes"`

	// Health endpoints
	LivePath  string `json:"live_path"`
	ReadyPath string `json:"ready_path"`
}

// DefaultHTTPConfig returns default HTTP API configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		TenantIDHeader:  "X-Tenant-ID",
		RequestIDHeader: "X-Request-ID",
		MaxBodyBytes:    16 << 20,
		LivePath:        "/health/live",
		ReadyPath:       "/health/ready",
	}
}

// HTTPHandler serves the classification API
type HTTPHandler struct {
	processor pipeline.Processor
	config    *HTTPConfig
	logger    *zap.Logger
	recorder  RequestRecorder
	ready     func(ctx context.Context) error
}

// HTTPOption configures an HTTPHandler
type HTTPOption func(*HTTPHandler)

// WithHTTPLogger sets the handler's logger
func WithHTTPLogger(logger *zap.Logger) HTTPOption {
	return func(h *HTTPHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHTTPRecorder sets the request recorder
func WithHTTPRecorder(r RequestRecorder) HTTPOption {
	return func(h *HTTPHandler) {
		h.recorder = r
	}
}

// WithReadiness sets the check behind the readiness endpoint
func WithReadiness(fn func(ctx context.Context) error) HTTPOption {
	return func(h *HTTPHandler) {
		h.ready = fn
	}
}

// NewHTTPHandler creates a handler for processor. A nil config uses DefaultHTTPConfig().
func NewHTTPHandler(processor pipeline.Processor, config *HTTPConfig, opts ...HTTPOption) *HTTPHandler {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	h := &HTTPHandler{
		processor: processor,
		config:    config,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds a gin engine with every route registered
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	h.Register(r)
	return r
}

// Register adds the API routes to r
func (h *HTTPHandler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/classify", h.Classify)
	v1.POST("/validate", h.Validate)
	v1.GET("/presets", h.Presets)
	v1.GET("/detectors", h.Detectors)

	r.GET(h.config.LivePath, h.Live)
	r.GET(h.config.ReadyPath, h.Ready)
}

// Classify runs the pipeline over the posted text
func (h *HTTPHandler) Classify(c *gin.Context) {
	h.limitBody(c)

	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TenantID == "" {
		req.TenantID = c.GetHeader(h.config.TenantIDHeader)
	}

	result, err := h.processor.Process(c.Request.Context(), req.processRequest())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrTextTooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		case errors.Is(err, context.Canceled):
			// client went away
			status = 499
		}
		h.logger.Warn("classification request failed",
			zap.String("request_id", c.GetHeader(h.config.RequestIDHeader)),
			zap.Error(err),
		)
		h.fail(c, status, err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

// Validate runs the validity scan over the posted detectors or the catalog
func (h *HTTPHandler) Validate(c *gin.Context) {
	h.limitBody(c)

	var req ValidateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	c.JSON(http.StatusOK, validate(h.processor, &req))
}

// Presets lists the built-in sample detectors
func (h *HTTPHandler) Presets(c *gin.Context) {
	c.JSON(http.StatusOK, PresetsResponse{Presets: classify.SamplePresets()})
}

// Detectors returns the loaded catalog
func (h *HTTPHandler) Detectors(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.Detectors())
}

// Live reports process liveness
func (h *HTTPHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether dependencies are reachable
func (h *HTTPHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *HTTPHandler) limitBody(c *gin.Context) {
	if h.config.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxBodyBytes)
	}
}

func (h *HTTPHandler) fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

// accessLog logs and counts each request. Bodies are never logged.
func (h *HTTPHandler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetHeader(h.config.RequestIDHeader)),
		)
		if h.recorder != nil {
			h.recorder.Request("http", strconv.Itoa(c.Writer.Status()))
		}
	}
}
