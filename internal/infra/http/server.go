// Package http exposes the workbench daemon's REST surface to the touch
// frontend and the shop-floor tooling.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/config"
	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/hid"
	"github.com/Testiot539/feec-workbench-daemon/internal/usecase"

	"github.com/gin-gonic/gin"
)

// AnchorDriver re-drives passport publication for a unit on demand.
type AnchorDriver interface {
	PublishUnit(ctx context.Context, unitInternalID string) error
}

type Server struct {
	cfg config.Config
	r   *gin.Engine

	workbench *usecase.Workbench
	registry  *usecase.UnitRegistry
	sessions  *usecase.StageSessionManager
	hid       *hid.Dispatcher

	anchors        domain.AnchorRepository
	anchorAttempts domain.AnchorAttemptRepository
	anchorDriver   AnchorDriver
	auditRepo      usecase.AuditEventRepository

	metricsHandler http.Handler

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

type ServerDeps struct {
	Workbench      *usecase.Workbench
	Registry       *usecase.UnitRegistry
	Sessions       *usecase.StageSessionManager
	Anchors        domain.AnchorRepository
	AnchorAttempts domain.AnchorAttemptRepository
	AnchorDriver   AnchorDriver
	AuditRepo      usecase.AuditEventRepository
	MetricsHandler http.Handler
	RateLimiter    domain.RateLimiter
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:               cfg,
		r:                 r,
		workbench:         deps.Workbench,
		registry:          deps.Registry,
		sessions:          deps.Sessions,
		anchors:           deps.Anchors,
		anchorAttempts:    deps.AnchorAttempts,
		anchorDriver:      deps.AnchorDriver,
		auditRepo:         deps.AuditRepo,
		metricsHandler:    deps.MetricsHandler,
		rateLimiter:       deps.RateLimiter,
		rateLimitRequests: cfg.RateLimitRequests,
		rateLimitWindow:   cfg.RateLimitWindow(),
	}
	if s.workbench != nil {
		s.hid = &hid.Dispatcher{Workbench: s.workbench}
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealthz)
	if s.metricsHandler != nil {
		s.r.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	s.r.POST("/employee/log-in", s.limited("employee:login", s.handleLogIn))
	s.r.POST("/employee/log-out", s.handleLogOut)

	s.r.GET("/workbench/status", s.handleWorkbenchStatus)
	s.r.POST("/workbench/assign-unit/:unit_internal_id", s.handleAssignUnit)
	s.r.POST("/workbench/remove-unit", s.handleRemoveUnit)
	s.r.POST("/workbench/start-operation", s.limited("operation:start", s.handleStartOperation))
	s.r.POST("/workbench/end-operation", s.handleEndOperation)
	s.r.POST("/workbench/hid-event", s.limited("hid:event", s.handleHIDEvent))

	s.r.POST("/unit/new", s.limited("unit:new", s.handleCreateUnit))
	s.r.GET("/unit/pending", s.handlePendingUnits)
	s.r.GET("/unit/:unit_internal_id/info", s.handleUnitInfo)
	s.r.POST("/unit/:unit_internal_id/assign-component", s.handleAssignComponent)
	s.r.POST("/unit/:unit_internal_id/revoke", s.handleRevokeUnit)
	s.r.POST("/unit/:unit_internal_id/abort-operation", s.handleAbortOperation)

	s.r.GET("/production-schemas", s.handleListSchemas)
	s.r.GET("/production-schemas/:schema_id", s.handleGetSchema)
	s.r.PUT("/production-schemas/:schema_id", s.handlePutSchema)

	s.r.GET("/anchors/:content_hash", s.handleAnchorStatus)
	s.r.POST("/anchors/:content_hash/retry", s.handleAnchorRetry)

	s.r.GET("/audit/events", s.handleAuditEvents)
	s.r.GET("/audit/verify", s.handleAuditVerify)

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

func (s *Server) Handler() http.Handler {
	return s.r
}
