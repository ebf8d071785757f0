package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	"github.com/noah-isme/ano-letivo-api/internal/repository"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
)

type transitionStore interface {
	Begin(ctx context.Context) (repository.TransitionTx, error)
}

type activeEnrollmentCounter interface {
	CountActive(ctx context.Context, exec sqlx.ExtContext, schoolYearID, schoolID string) (int, error)
}

type pendingGradesValidator interface {
	Validate(ctx context.Context, year int, schoolID string) (*models.PendingGradesReport, error)
}

type transitionAuditWriter interface {
	Create(ctx context.Context, audit *models.TransitionAudit) error
}

type operatorReauthenticator interface {
	Reauthenticate(ctx context.Context, operatorID, secret string) error
}

type backupGate interface {
	Ensure(ctx context.Context, override bool) (*BackupResult, error)
}

type transitionReportGenerator interface {
	Generate(ctx context.Context, result *models.TransitionResult) (*ReportArtifact, error)
}

// TransitionConfig tunes the engine.
type TransitionConfig struct {
	PassingGrade float64
	Location     *time.Location
	LockTTL      time.Duration
	AuditDryRun  bool
}

// TransitionDependencies groups the collaborators of TransitionService. Backup, Reports, Lock and
// Metrics are optional.
type TransitionDependencies struct {
	Store       transitionStore
	Years       schoolYearReader
	Enrollments activeEnrollmentCounter
	Pending     pendingGradesValidator
	Audits      transitionAuditWriter
	Auth        operatorReauthenticator
	Backup      backupGate
	Reports     transitionReportGenerator
	Lock        RunLock
	Metrics     *MetricsService
}

// TransitionService runs the academic year transition for one school.
type TransitionService struct {
	deps      TransitionDependencies
	cfg       TransitionConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTransitionService constructs the engine.
func NewTransitionService(deps TransitionDependencies, cfg TransitionConfig, validate *validator.Validate, logger *zap.Logger) *TransitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PassingGrade <= 0 {
		cfg.PassingGrade = DefaultPassingGrade
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if deps.Lock == nil {
		deps.Lock = NewLocalRunLock()
	}
	return &TransitionService{deps: deps, cfg: cfg, validator: validate, logger: logger, now: time.Now}
}

// CheckPreconditions reports calendar and pending-grade readiness without writing anything.
func (s *TransitionService) CheckPreconditions(ctx context.Context, year int, schoolID string) (*models.PreconditionReport, error) {
	if year <= 0 || schoolID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "year and schoolId are required")
	}
	origin, err := s.loadOriginYear(ctx, year)
	if err != nil {
		return nil, err
	}
	report := &models.PreconditionReport{
		OriginYear:    year,
		SchoolID:      schoolID,
		CalendarEnd:   origin.EffectiveEnd(s.cfg.Location),
		CalendarEnded: origin.CalendarEnded(s.now(), s.cfg.Location),
	}
	active, err := s.deps.Enrollments.CountActive(ctx, nil, origin.ID, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active enrollments")
	}
	report.ActiveEnrollments = active

	pending, err := s.deps.Pending.Validate(ctx, year, schoolID)
	if err != nil {
		return nil, err
	}
	report.PendingGrades = pending
	report.PendingSummary = pending.Summary()
	report.Ready = report.CalendarEnded && !pending.HasPendencies()
	return report, nil
}

// Run executes one transition. Preconditions are checked before any write; every write happens in
// one transaction that is rolled back on failure, on dry-run and on a rejected confirmation.
func (s *TransitionService) Run(ctx context.Context, req models.TransitionRequest, progress models.ProgressFunc) (*models.TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition request")
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	log := s.logger.With(
		zap.String("run_id", req.RunID),
		zap.Int("origin_year", req.OriginYear),
		zap.String("school_id", req.SchoolID),
		zap.String("operator_id", req.OperatorID),
		zap.Bool("dry_run", req.DryRun),
	)

	start := s.now()
	machine := models.NewStateMachine()
	result := &models.TransitionResult{
		RunID:           req.RunID,
		OriginYear:      req.OriginYear,
		DestinationYear: req.DestinationYear(),
		SchoolID:        req.SchoolID,
		OperatorID:      req.OperatorID,
		DryRun:          req.DryRun,
		State:           models.StateNotStarted,
		StartedAt:       start.UTC(),
	}
	emit := func(message string) {
		result.State = machine.Current()
		result.States = machine.History()
		if progress != nil {
			progress(models.ProgressEvent{RunID: req.RunID, State: machine.Current(), Message: message, At: s.now().UTC()})
		}
	}

	release, err := s.deps.Lock.Acquire(ctx, "escola:"+req.SchoolID, s.cfg.LockTTL)
	if err != nil {
		s.deps.Metrics.ObservePreconditionRefusal("lock")
		log.Warn("transition refused: lock held", zap.Error(err))
		return nil, err
	}
	defer release()

	backup, err := s.checkPreconditions(ctx, req, log)
	if err != nil {
		return nil, err
	}
	emit("pré-condições verificadas")

	tx, err := s.deps.Store.Begin(ctx)
	if err != nil {
		return s.fail(ctx, result, machine, nil, err, log, emit, backup)
	}

	classification, err := s.execute(ctx, tx, req, machine, result, emit, log)
	if err != nil {
		return s.fail(ctx, result, machine, tx, err, log, emit, backup)
	}

	switch {
	case req.DryRun:
		if err := tx.Rollback(); err != nil {
			log.Warn("dry-run rollback failed", zap.Error(err))
		}
		result.Status = models.AuditStatusRollback
		log.Info("dry-run finished, all writes rolled back")
	default:
		if err := s.deps.Auth.Reauthenticate(ctx, req.OperatorID, req.Password); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("rollback failed", zap.Error(rbErr))
			}
			_ = machine.Advance(models.StateErrorRolledBack)
			emit("confirmação recusada, alterações desfeitas")
			result.Status = models.AuditStatusRollback
			result.Error = err.Error()
			s.finish(result, start)
			log.Warn("transition rolled back: confirmation failed", zap.Error(err))
			s.writeAudit(ctx, result, backup, log)
			s.deps.Metrics.ObserveTransition(result)
			return result, err
		}
		if err := tx.Commit(); err != nil {
			return s.fail(ctx, result, machine, nil, err, log, emit, backup)
		}
		result.Status = models.AuditStatusSuccess
		log.Info("transition committed",
			zap.Int("matriculas_encerradas", result.Counters.ClosedEnrollments),
			zap.Int("matriculas_criadas", result.Counters.CreatedEnrollments))
	}
	result.Placements = classification.Placements

	s.finish(result, start)
	if !req.DryRun || s.cfg.AuditDryRun {
		s.writeAudit(ctx, result, backup, log)
	}
	_ = machine.Advance(models.StateAuditRecorded)
	emit("auditoria registrada")

	if !req.DryRun && s.deps.Reports != nil {
		artifact, err := s.deps.Reports.Generate(ctx, result)
		if err != nil {
			log.Warn("transition report generation failed", zap.Error(err))
		} else {
			result.ReportPath = artifact.RelativePath
			result.ReportToken = artifact.Token
		}
	}
	_ = machine.Advance(models.StateDone)
	emit("concluído")
	s.deps.Metrics.ObserveTransition(result)
	return result, nil
}

func (s *TransitionService) checkPreconditions(ctx context.Context, req models.TransitionRequest, log *zap.Logger) (*BackupResult, error) {
	origin, err := s.loadOriginYear(ctx, req.OriginYear)
	if err != nil {
		return nil, err
	}
	if !origin.CalendarEnded(s.now(), s.cfg.Location) {
		end := origin.EffectiveEnd(s.cfg.Location)
		s.deps.Metrics.ObservePreconditionRefusal("calendar")
		log.Warn("transition refused: calendar still open", zap.Time("calendar_end", end))
		return nil, appErrors.WithDetails(appErrors.ErrCalendarOpen,
			fmt.Sprintf("o ano letivo %d termina em %s", req.OriginYear, end.Format("02/01/2006")),
			map[string]interface{}{"calendar_end": end})
	}

	report, err := s.deps.Pending.Validate(ctx, req.OriginYear, req.SchoolID)
	if err != nil {
		return nil, err
	}
	if report.HasPendencies() {
		summary := report.Summary()
		s.deps.Metrics.ObservePreconditionRefusal("pending_grades")
		log.Warn("transition refused: pending grades",
			zap.Int("sections", summary.Sections), zap.Int("students", summary.Students), zap.Int("errors", summary.Errors))
		return nil, appErrors.WithDetails(appErrors.ErrPendingGrades,
			fmt.Sprintf("%d turma(s) com notas pendentes", summary.Sections+summary.Errors), report)
	}

	if req.DryRun || s.deps.Backup == nil {
		return nil, nil
	}
	backup, err := s.deps.Backup.Ensure(ctx, req.BackupOverride)
	if err != nil {
		s.deps.Metrics.ObservePreconditionRefusal("backup")
		log.Warn("transition refused: backup unavailable", zap.Error(err))
		return nil, err
	}
	return backup, nil
}

func (s *TransitionService) loadOriginYear(ctx context.Context, year int) (*models.SchoolYear, error) {
	origin, err := s.deps.Years.FindByYear(ctx, nil, year)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("school year %d not found", year))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}
	return origin, nil
}

func (s *TransitionService) execute(ctx context.Context, tx repository.TransitionTx, req models.TransitionRequest, machine *models.StateMachine, result *models.TransitionResult, emit func(string), log *zap.Logger) (Classification, error) {
	var none Classification

	destination, created, err := tx.EnsureSchoolYear(ctx, req.DestinationYear())
	if err != nil {
		return none, err
	}
	if err := machine.Advance(models.StateYearCreated); err != nil {
		return none, err
	}
	emit(fmt.Sprintf("ano letivo %d disponível", req.DestinationYear()))
	log.Info("destination year ready", zap.String("school_year_id", destination.ID), zap.Bool("created", created))

	origin, err := tx.FindSchoolYear(ctx, req.OriginYear)
	if err != nil {
		return none, fmt.Errorf("load origin year: %w", err)
	}
	snapshot, err := tx.ListEnrollments(ctx, origin.ID, req.SchoolID)
	if err != nil {
		return none, err
	}
	sections, err := tx.ListSections(ctx, req.SchoolID)
	if err != nil {
		return none, err
	}
	scores, err := tx.ListYearScores(ctx, origin.ID, req.SchoolID)
	if err != nil {
		return none, err
	}
	activeAtStart := 0
	for _, e := range snapshot {
		if e.Status == models.EnrollmentStatusActive {
			activeAtStart++
		}
	}

	closed, err := tx.CloseActiveEnrollments(ctx, origin.ID, req.SchoolID, s.now().UTC())
	if err != nil {
		return none, err
	}
	if closed != activeAtStart {
		return none, fmt.Errorf("active enrollments changed during transition: read %d, closed %d", activeAtStart, closed)
	}
	result.Counters.ClosedEnrollments = closed
	if err := machine.Advance(models.StateEnrollmentsClosed); err != nil {
		return none, err
	}
	emit(fmt.Sprintf("%d matrícula(s) encerrada(s)", closed))

	classification := Classify(ClassificationInput{
		Enrollments:  snapshot,
		Scores:       scores,
		Progression:  NewProgressionMap(sections),
		PassingGrade: s.cfg.PassingGrade,
	})
	for _, dup := range classification.Duplicates {
		log.Warn("duplicate active enrollment closed without re-enrollment",
			zap.String("student_id", dup.StudentID), zap.String("enrollment_id", dup.ID))
	}
	for _, p := range classification.Placements {
		if p.NoProgression {
			log.Warn("no next section resolved, student kept in current section",
				zap.String("student_id", p.StudentID), zap.String("section_id", p.OriginSectionID))
		}
	}
	c := classification.Counters
	result.Counters.Promoted = c.Promoted
	result.Counters.Retained = c.Retained
	result.Counters.Excluded = c.Excluded
	result.Counters.DuplicateEnrollments = c.DuplicateEnrollments
	result.Counters.WithoutProgression = c.WithoutProgression
	result.Counters.Graduates = closed - c.DuplicateEnrollments - c.Promoted - c.Retained - c.Excluded
	if result.Counters.Graduates != c.Graduates {
		log.Warn("derived graduates differ from classified graduates",
			zap.Int("derived", result.Counters.Graduates), zap.Int("classified", c.Graduates))
	}
	if err := machine.Advance(models.StateStudentsClassified); err != nil {
		return none, err
	}
	emit(fmt.Sprintf("%d promovido(s), %d retido(s), %d concluinte(s)", c.Promoted, c.Retained, result.Counters.Graduates))

	enrolledAt := s.now().UTC()
	for _, p := range classification.Reenrollments() {
		enrollment := &models.Enrollment{
			StudentID:      p.StudentID,
			ClassSectionID: p.DestinationSectionID,
			SchoolYearID:   destination.ID,
			Status:         models.EnrollmentStatusActive,
			EnrolledAt:     enrolledAt,
		}
		if err := tx.CreateEnrollment(ctx, enrollment); err != nil {
			return none, fmt.Errorf("re-enroll student %s: %w", p.StudentID, err)
		}
		result.Counters.CreatedEnrollments++
	}
	if err := machine.Advance(models.StateEnrollmentsCreated); err != nil {
		return none, err
	}
	emit(fmt.Sprintf("%d matrícula(s) criada(s)", result.Counters.CreatedEnrollments))
	return classification, nil
}

func (s *TransitionService) fail(ctx context.Context, result *models.TransitionResult, machine *models.StateMachine, tx repository.TransitionTx, cause error, log *zap.Logger, emit func(string), backup *BackupResult) (*models.TransitionResult, error) {
	if tx != nil {
		if err := tx.Rollback(); err != nil {
			log.Error("rollback failed", zap.Error(err))
		}
	}
	_ = machine.Advance(models.StateErrorRolledBack)
	emit("falha, alterações desfeitas")
	result.Status = models.AuditStatusError
	result.Error = cause.Error()
	result.Counters = models.TransitionCounters{}
	s.finish(result, result.StartedAt)
	log.Error("transition failed and was rolled back", zap.Error(cause))
	s.writeAudit(ctx, result, backup, log)
	s.deps.Metrics.ObserveTransition(result)
	return result, appErrors.Wrap(cause, appErrors.ErrTransitionFailed.Code, appErrors.ErrTransitionFailed.Status, "transição falhou e foi desfeita: "+cause.Error())
}

func (s *TransitionService) finish(result *models.TransitionResult, start time.Time) {
	finished := s.now()
	result.FinishedAt = finished.UTC()
	result.DurationSeconds = finished.Sub(start).Seconds()
}

// writeAudit is best effort. A failure is logged and counted but never changes the run outcome.
func (s *TransitionService) writeAudit(ctx context.Context, result *models.TransitionResult, backup *BackupResult, log *zap.Logger) {
	detail := result.ReportPayload()
	detail["run_id"] = result.RunID
	detail["dry_run"] = result.DryRun
	detail["estados"] = result.States
	detail["alunos_excluir"] = result.Counters.Excluded
	detail["matriculas_duplicadas"] = result.Counters.DuplicateEnrollments
	detail["alunos_sem_progressao"] = result.Counters.WithoutProgression
	if result.Error != "" {
		detail["erro"] = result.Error
	}
	if backup != nil {
		detail["backup"] = backup
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = []byte(`{}`)
	}
	audit := &models.TransitionAudit{
		OriginYear:         result.OriginYear,
		DestinationYear:    result.DestinationYear,
		SchoolID:           result.SchoolID,
		OperatorID:         result.OperatorID,
		ClosedEnrollments:  result.Counters.ClosedEnrollments,
		CreatedEnrollments: result.Counters.CreatedEnrollments,
		Promoted:           result.Counters.Promoted,
		Retained:           result.Counters.Retained,
		Graduates:          result.Counters.Graduates,
		Status:             result.Status,
		Detail:             types.JSONText(payload),
	}
	if err := s.deps.Audits.Create(context.WithoutCancel(ctx), audit); err != nil {
		s.deps.Metrics.ObserveAuditFailure()
		log.Error("failed to write transition audit", zap.Error(err))
	}
}
