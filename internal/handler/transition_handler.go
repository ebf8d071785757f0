package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	"github.com/noah-isme/ano-letivo-api/internal/service"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
	"github.com/noah-isme/ano-letivo-api/pkg/response"
)

// TransitionPreconditionChecker reports readiness of a school year.
type TransitionPreconditionChecker interface {
	CheckPreconditions(ctx context.Context, year int, schoolID string) (*models.PreconditionReport, error)
}

// PendingGradesValidator lists missing term scores.
type PendingGradesValidator interface {
	Validate(ctx context.Context, year int, schoolID string) (*models.PendingGradesReport, error)
}

// TransitionRunSubmitter queues transitions and exposes their progress.
type TransitionRunSubmitter interface {
	Submit(ctx context.Context, req models.TransitionRequest) (*models.TransitionRun, error)
	Get(ctx context.Context, id string) (*models.TransitionRun, error)
}

// TransitionAuditLister pages through the audit trail.
type TransitionAuditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.TransitionAudit, int, error)
}

// TransitionReportResolver turns a signed token into a stored report.
type TransitionReportResolver interface {
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// TransitionHandler exposes the academic year transition endpoints.
type TransitionHandler struct {
	preconditions TransitionPreconditionChecker
	pending       PendingGradesValidator
	runs          TransitionRunSubmitter
	audits        TransitionAuditLister
	reports       TransitionReportResolver
}

// NewTransitionHandler constructs the handler.
func NewTransitionHandler(preconditions TransitionPreconditionChecker, pending PendingGradesValidator, runs TransitionRunSubmitter, audits TransitionAuditLister, reports TransitionReportResolver) *TransitionHandler {
	return &TransitionHandler{preconditions: preconditions, pending: pending, runs: runs, audits: audits, reports: reports}
}

type transitionPayload struct {
	OriginYear     int    `json:"originYear" binding:"required"`
	SchoolID       string `json:"schoolId" binding:"required"`
	DryRun         bool   `json:"dryRun"`
	Password       string `json:"password"`
	BackupOverride bool   `json:"backupOverride"`
}

// Preconditions godoc
// @Summary Check transition readiness
// @Description Calendar end, pending grades and active enrollments for a school year
// @Tags Transitions
// @Produce json
// @Param year query int true "Origin school year"
// @Param schoolId query string true "School ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /transitions/preconditions [get]
func (h *TransitionHandler) Preconditions(c *gin.Context) {
	year, schoolID, ok := yearAndSchool(c)
	if !ok {
		return
	}
	report, err := h.preconditions.CheckPreconditions(c.Request.Context(), year, schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// PendingGrades godoc
// @Summary List pending grades
// @Description Students and subjects without a score in any term of the year
// @Tags Transitions
// @Produce json
// @Param year query int true "School year"
// @Param schoolId query string true "School ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /transitions/pending-grades [get]
func (h *TransitionHandler) PendingGrades(c *gin.Context) {
	year, schoolID, ok := yearAndSchool(c)
	if !ok {
		return
	}
	report, err := h.pending.Validate(c.Request.Context(), year, schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil, map[string]interface{}{
		"summary":   report.Summary(),
		"bloqueado": report.HasPendencies(),
	})
}

// Start godoc
// @Summary Start a transition
// @Description Queues the academic year transition of a school. Poll the returned run for progress.
// @Tags Transitions
// @Accept json
// @Produce json
// @Param payload body transitionPayload true "Transition request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transitions [post]
func (h *TransitionHandler) Start(c *gin.Context) {
	claims, ok := currentOperator(c)
	if !ok {
		return
	}
	var payload transitionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}
	if !payload.DryRun && payload.Password == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "password required to confirm a transition"))
		return
	}

	run, err := h.runs.Submit(c.Request.Context(), models.TransitionRequest{
		OriginYear:     payload.OriginYear,
		SchoolID:       payload.SchoolID,
		OperatorID:     claims.UserID,
		DryRun:         payload.DryRun,
		Password:       payload.Password,
		BackupOverride: payload.BackupOverride,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Location", "/api/v1/transitions/runs/"+run.ID)
	response.Accepted(c, run)
}

// Run godoc
// @Summary Get transition run
// @Tags Transitions
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /transitions/runs/{id} [get]
func (h *TransitionHandler) Run(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// Audits godoc
// @Summary List transition audits
// @Tags Transitions
// @Produce json
// @Param schoolId query string false "School ID"
// @Param year query int false "Origin year"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /transitions/audits [get]
func (h *TransitionHandler) Audits(c *gin.Context) {
	filter := models.AuditFilter{
		SchoolID: c.Query("schoolId"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "pageSize", 20),
	}
	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year must be a number"))
			return
		}
		filter.OriginYear = year
	}
	audits, total, err := h.audits.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audits, filter.Pagination(total))
}

// DownloadReport godoc
// @Summary Download a transition report
// @Tags Transitions
// @Produce application/pdf
// @Produce text/csv
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /transitions/reports/{token} [get]
func (h *TransitionHandler) DownloadReport(c *gin.Context) {
	download, err := h.reports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	contentType := "application/pdf"
	if download.Format == service.ReportFormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	c.Header("Content-Type", contentType)
	c.FileAttachment(download.Path, download.Filename)
}
