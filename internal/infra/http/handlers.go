package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/hid"
	"github.com/Testiot539/feec-workbench-daemon/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type logInRequest struct {
	CardToken string `json:"employee_rfid_card_no"`
}

func (s *Server) handleLogIn(c *gin.Context) {
	var req logInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	employee, err := s.workbench.LogIn(c.Request.Context(), req.CardToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"employee_name":     employee.Name,
		"employee_position": employee.Position,
	})
}

func (s *Server) handleLogOut(c *gin.Context) {
	if err := s.workbench.LogOut(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleWorkbenchStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.workbench.Status())
}

func (s *Server) handleAssignUnit(c *gin.Context) {
	if err := s.workbench.AssignUnit(c.Request.Context(), c.Param("unit_internal_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRemoveUnit(c *gin.Context) {
	if err := s.workbench.RemoveUnit(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type operationRequest struct {
	AdditionalInfo map[string]string `json:"additional_info"`
	Premature      bool              `json:"premature"`
}

func (s *Server) handleStartOperation(c *gin.Context) {
	var req operationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if err := s.workbench.StartOperation(c.Request.Context(), req.AdditionalInfo); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.workbench.Status())
}

func (s *Server) handleEndOperation(c *gin.Context) {
	var req operationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if err := s.workbench.EndOperation(c.Request.Context(), req.AdditionalInfo, req.Premature); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.workbench.Status())
}

func (s *Server) handleHIDEvent(c *gin.Context) {
	var event hid.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if err := s.hid.Dispatch(c.Request.Context(), event); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.workbench.Status())
}

type createUnitRequest struct {
	SchemaID string `json:"schema_id"`
}

func (s *Server) handleCreateUnit(c *gin.Context) {
	var req createUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	unit, err := s.workbench.CreateUnit(c.Request.Context(), req.SchemaID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unit_internal_id": unit.InternalID})
}

func (s *Server) handlePendingUnits(c *gin.Context) {
	entries, err := s.registry.ListPending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"units": entries})
}

func (s *Server) handleUnitInfo(c *gin.Context) {
	unit, err := s.registry.GetUnit(c.Request.Context(), c.Param("unit_internal_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildUnitInfo(unit))
}

type unitInfoResponse struct {
	UnitInternalID string               `json:"unit_internal_id"`
	UnitName       string               `json:"unit_name"`
	SchemaID       string               `json:"schema_id"`
	Status         string               `json:"unit_status"`
	PassportCID    string               `json:"passport_ipfs_cid,omitempty"`
	LedgerTxHash   string               `json:"ledger_tx_hash,omitempty"`
	Biography      []domain.StageRecord `json:"unit_biography"`
	Components     map[string]string    `json:"unit_components,omitempty"`
}

func buildUnitInfo(unit *domain.Unit) unitInfoResponse {
	return unitInfoResponse{
		UnitInternalID: unit.InternalID,
		UnitName:       unit.Schema.UnitName,
		SchemaID:       unit.SchemaID,
		Status:         string(unit.Status),
		PassportCID:    unit.PassportCID,
		LedgerTxHash:   unit.LedgerTxHash,
		Biography:      unit.Biography,
		Components:     unit.AssignedComponents(),
	}
}

type assignComponentRequest struct {
	ComponentInternalID string `json:"component_internal_id"`
}

func (s *Server) handleAssignComponent(c *gin.Context) {
	var req assignComponentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	// Components attach through the workbench so its gathering state stays
	// consistent with what is physically on the table.
	status := s.workbench.Status()
	if status.UnitInternalID != c.Param("unit_internal_id") {
		writeErrorCode(c, http.StatusConflict, "STATE_FORBIDDEN", "unit is not on the workbench")
		return
	}
	if err := s.workbench.AssignComponent(c.Request.Context(), req.ComponentInternalID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.workbench.Status())
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRevokeUnit(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	operator := domain.Employee{}
	if status := s.workbench.Status(); status.EmployeeLoggedIn {
		operator.Name = status.EmployeeName
		operator.Position = status.EmployeePosition
	}
	if err := s.registry.Revoke(c.Request.Context(), c.Param("unit_internal_id"), req.Reason, operator); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type abortRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleAbortOperation(c *gin.Context) {
	var req abortRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if err := s.sessions.Abort(c.Request.Context(), c.Param("unit_internal_id"), req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListSchemas(c *gin.Context) {
	schemas, err := s.registry.ListSchemas(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"production_schemas": schemas})
}

func (s *Server) handleGetSchema(c *gin.Context) {
	schema, err := s.registry.GetSchema(c.Request.Context(), c.Param("schema_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schema)
}

func (s *Server) handlePutSchema(c *gin.Context) {
	var schema domain.ProductionSchema
	if err := c.ShouldBindJSON(&schema); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	schema.SchemaID = c.Param("schema_id")
	if err := s.registry.SaveSchema(c.Request.Context(), schema); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schema_id": schema.SchemaID})
}

func (s *Server) handleAnchorStatus(c *gin.Context) {
	contentHash := c.Param("content_hash")
	rec, err := s.anchors.GetByContentHash(c.Request.Context(), contentHash)
	if err != nil {
		writeError(c, err)
		return
	}
	attempts, err := s.anchorAttempts.ListByContentHash(c.Request.Context(), contentHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record":   rec,
		"attempts": attempts,
	})
}

func (s *Server) handleAnchorRetry(c *gin.Context) {
	rec, err := s.anchors.GetByContentHash(c.Request.Context(), c.Param("content_hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	if s.anchorDriver == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "ANCHORING_DISABLED", "anchoring is not configured")
		return
	}
	if err := s.anchorDriver.PublishUnit(c.Request.Context(), rec.UnitInternalID); err != nil {
		writeError(c, err)
		return
	}
	updated, err := s.anchors.GetByContentHash(c.Request.Context(), rec.ContentHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": updated})
}

func (s *Server) handleAuditEvents(c *gin.Context) {
	events, err := s.auditRepo.ListByWorkbench(c.Request.Context(), s.workbench.Number)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleAuditVerify(c *gin.Context) {
	if err := usecase.VerifyAuditChain(c.Request.Context(), s.auditRepo, s.workbench.Number); err != nil {
		c.JSON(http.StatusConflict, gin.H{"valid": false, "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorizedOperator):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED_OPERATOR"
	case errors.Is(err, domain.ErrOutOfSequence):
		status, code = http.StatusConflict, "OUT_OF_SEQUENCE"
	case errors.Is(err, domain.ErrUnitBusy):
		status, code = http.StatusConflict, "UNIT_BUSY"
	case errors.Is(err, domain.ErrImmutableUnit):
		status, code = http.StatusConflict, "IMMUTABLE_UNIT"
	case errors.Is(err, domain.ErrInvalidUnitState):
		status, code = http.StatusConflict, "INVALID_UNIT_STATE"
	case errors.Is(err, domain.ErrStateForbidden):
		status, code = http.StatusConflict, "STATE_FORBIDDEN"
	case errors.Is(err, domain.ErrNoPendingStages):
		status, code = http.StatusConflict, "NO_PENDING_STAGES"
	case errors.Is(err, domain.ErrComponentRejected):
		status, code = http.StatusBadRequest, "COMPONENT_REJECTED"
	case errors.Is(err, domain.ErrInvalidSchema):
		status, code = http.StatusBadRequest, "INVALID_SCHEMA"
	case errors.Is(err, domain.ErrIncompleteUnit):
		status, code = http.StatusConflict, "INCOMPLETE_UNIT"
	case errors.Is(err, domain.ErrStorageIntegrity):
		status, code = http.StatusBadGateway, "STORAGE_INTEGRITY"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
