// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/observability"
	"github.com/roach88/schemata/internal/orchestrator"
)

// Service is the orchestrator surface the HTTP routes call.
type Service interface {
	Create(ctx context.Context, desc model.SchemaDescriptor, props []model.Property) (model.Aggregate, error)
	GetByID(ctx context.Context, id string) (model.Aggregate, error)
	GetAll(ctx context.Context) ([]model.Schema, error)
	UpdateByID(ctx context.Context, id string, draft model.SchemaDraft) (model.Aggregate, error)
	DeleteSchema(ctx context.Context, id string) (model.Schema, error)
	DeleteProperty(ctx context.Context, schemaID, propertyID string) (model.Aggregate, error)
	Verify(ctx context.Context) (orchestrator.Report, error)
}

var _ Service = (*orchestrator.Orchestrator)(nil)

// Server routes HTTP requests to a Service.
type Server struct {
	svc      Service
	events   http.Handler
	router   *gin.Engine
	appeared time.Time
}

// Option configures a Server.
type Option func(*options)

type options struct {
	corsOrigins []string
}

// WithCORS allows cross-origin browser requests from origins. Empty
// strings are ignored; with no origins left no CORS headers are sent.
func WithCORS(origins ...string) Option {
	return func(o *options) {
		for _, origin := range origins {
			if origin != "" {
				o.corsOrigins = append(o.corsOrigins, origin)
			}
		}
	}
}

// New builds the router. events serves GET /api/events and may be nil,
// in which case the route is not registered.
func New(svc Service, events http.Handler, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger())
	r.Use(observability.RequestMetricsMiddleware())
	if len(o.corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: o.corsOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		svc:      svc,
		events:   events,
		router:   r,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": observability.ServiceName,
			"version": model.ServiceVersion,
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.POST("/schemas", s.createSchema)
	api.GET("/schemas", s.listSchemas)
	api.GET("/schemas/:id", s.getSchema)
	api.PUT("/schemas/:id", s.updateSchema)
	api.DELETE("/schemas/:id", s.deleteSchema)
	api.DELETE("/schemas/:id/properties/:propertyId", s.deleteProperty)
	api.GET("/consistency", s.consistency)
	if s.events != nil {
		api.GET("/events", gin.WrapH(s.events))
	}
}

func (s *Server) createSchema(c *gin.Context) {
	var body model.SchemaDraft
	if !bindJSON(c, &body) {
		return
	}
	agg, err := s.svc.Create(c.Request.Context(), model.SchemaDescriptor{Name: body.Name}, body.Properties)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agg)
}

func (s *Server) listSchemas(c *gin.Context) {
	docs, err := s.svc.GetAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) getSchema(c *gin.Context) {
	agg, err := s.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (s *Server) updateSchema(c *gin.Context) {
	var body model.SchemaDraft
	if !bindJSON(c, &body) {
		return
	}
	agg, err := s.svc.UpdateByID(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (s *Server) deleteSchema(c *gin.Context) {
	doc, err := s.svc.DeleteSchema(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) deleteProperty(c *gin.Context) {
	agg, err := s.svc.DeleteProperty(c.Request.Context(), c.Param("id"), c.Param("propertyId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (s *Server) consistency(c *gin.Context) {
	report, err := s.svc.Verify(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{
			Code:    string(orchestrator.CodeInvalidValueInSchema),
			Message: "malformed request body: " + err.Error(),
		}})
		return false
	}
	return true
}

// statusFor maps an orchestrator error code to an HTTP status.
func statusFor(code orchestrator.ErrorCode) int {
	switch code {
	case orchestrator.CodeInvalidID, orchestrator.CodeInvalidValueInSchema:
		return http.StatusBadRequest
	case orchestrator.CodeNotFound, orchestrator.CodePropertyNotInSchema:
		return http.StatusNotFound
	case orchestrator.CodeDuplicateSchemaName, orchestrator.CodeDuplicatePropertyName:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := orchestrator.CodeOf(err)
	status := statusFor(code)

	body := errorBody{Code: string(code), Message: err.Error()}
	if code == "" {
		// Infrastructure failures are logged, not echoed.
		body = errorBody{Code: "INTERNAL", Message: "internal error"}
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	if orchestrator.IsInconsistentState(err) {
		slog.Error("request left stores inconsistent", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": body})
}
