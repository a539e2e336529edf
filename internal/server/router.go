package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadBytes    = 10 << 20
	defaultHeartbeatInterval = 25 * time.Second
	multipartOverheadBytes   = 1 << 20
)

var errMissingBannersService = errors.New("banners service dependency required")

type Dependencies struct {
	BannersService *banners.Service
	Realtime       *RealtimeDispatcher
	Metrics        *metrics.Registry
	Logger         *zap.Logger

	AllowedOrigins    []string
	MaxUploadBytes    int64
	HeartbeatInterval time.Duration
	// UploadsDir and UploadsPrefix expose the local asset host; both empty disables the route.
	UploadsDir    string
	UploadsPrefix string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.BannersService == nil {
		return nil, errMissingBannersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestTelemetry(logger, deps.Metrics))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		bannersService:    deps.BannersService,
		realtime:          deps.Realtime,
		metrics:           deps.Metrics,
		logger:            logger,
		validate:          validator.New(),
		maxUploadBytes:    maxUpload,
		heartbeatInterval: heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.UploadsDir != "" && deps.UploadsPrefix != "" {
		router.Static("/"+strings.Trim(deps.UploadsPrefix, "/"), deps.UploadsDir)
	}

	api := router.Group("/api")
	api.GET("/banners", handler.handleSelection)
	api.GET("/banners/events", handler.handleEventStream)
	api.POST("/banners/upload", handler.handleUpload)
	api.DELETE("/banners", handler.handleDelete)
	api.GET("/config/banners/list", handler.handleList)
	api.PUT("/config/banners", handler.handleUpdate)

	return router, nil
}

type httpHandler struct {
	bannersService    *banners.Service
	realtime          *RealtimeDispatcher
	metrics           *metrics.Registry
	logger            *zap.Logger
	validate          *validator.Validate
	maxUploadBytes    int64
	heartbeatInterval time.Duration
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// requestTelemetry writes one access log entry and one metrics observation per request.
func requestTelemetry(logger *zap.Logger, registry *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()

		registry.ObserveRequest(c.Request.Method, route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("http request", fields...)
		default:
			logger.Debug("http request", fields...)
		}
	}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if err := h.bannersService.Check(c.Request.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "config_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps a registry error onto the HTTP error body.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	status, message := classifyError(err)
	code := ""
	var serviceErr *banners.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	h.metrics.ObserveOperation(operation, message)
	if status >= http.StatusInternalServerError {
		h.logger.Error("banners request failed", zap.String("operation", operation), zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, gin.H{"success": false, "error": message, "code": code})
}

func (h *httpHandler) respondInvalid(c *gin.Context, operation, message string) {
	h.metrics.ObserveOperation(operation, message)
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message, "code": "http." + operation + "." + message})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, banners.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, banners.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, banners.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, banners.ErrAssetHost):
		return http.StatusBadGateway, "asset_host_unavailable"
	case errors.Is(err, banners.ErrConfigUnavailable):
		return http.StatusServiceUnavailable, "config_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
