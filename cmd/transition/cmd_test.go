package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
)

type stubTransition struct {
	report   *models.PreconditionReport
	requests []models.TransitionRequest
	err      error
}

func (s *stubTransition) CheckPreconditions(ctx context.Context, year int, schoolID string) (*models.PreconditionReport, error) {
	if s.report == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
	}
	return s.report, nil
}

func (s *stubTransition) Run(ctx context.Context, req models.TransitionRequest, progress models.ProgressFunc) (*models.TransitionResult, error) {
	s.requests = append(s.requests, req)
	progress(models.ProgressEvent{State: models.StateEnrollmentsClosed, Message: "3 matrícula(s) encerrada(s)"})
	status := models.AuditStatusSuccess
	if req.DryRun {
		status = models.AuditStatusRollback
	}
	return &models.TransitionResult{
		OriginYear:      req.OriginYear,
		DestinationYear: req.DestinationYear(),
		DryRun:          req.DryRun,
		Status:          status,
		Counters:        models.TransitionCounters{ClosedEnrollments: 3, CreatedEnrollments: 2, Promoted: 1, Retained: 1, Graduates: 1},
	}, s.err
}

type stubOperators struct{}

func (stubOperators) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	switch email {
	case "secretaria@escola.gov.br":
		return &models.User{ID: "op-1", Email: email, Role: models.RoleAdmin, Active: true}, nil
	case "leitura@escola.gov.br":
		return &models.User{ID: "op-2", Email: email, Role: models.RoleSecretary, Active: true}, nil
	}
	return nil, sql.ErrNoRows
}

func readyReport() *models.PreconditionReport {
	return &models.PreconditionReport{
		OriginYear:    2025,
		SchoolID:      "escola-s",
		CalendarEnded: true,
		CalendarEnd:   time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC),
		Ready:         true,
	}
}

func setup(t *testing.T, report *models.PreconditionReport, stdin string) (*commandLine, *stubTransition, *bytes.Buffer) {
	t.Helper()
	stub := &stubTransition{report: report}
	out := &bytes.Buffer{}
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("segredo"), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
	return &commandLine{checker: stub, executor: stub, operators: stubOperators{}, in: strings.NewReader(stdin), out: out}, stub, out
}

type cliTest struct {
	name       string
	args       []string
	wantErr    error
	wantErrStr string
}

func Test_commandLine_usage(t *testing.T) {
	tests := []cliTest{
		{name: "no subcommand", args: []string{"transition"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"transition", "lol"}, wantErr: errHelp},
		{name: "check: missing school", args: []string{"transition", "check", "-year", "2025"}, wantErr: errHelp},
		{name: "run: missing operator", args: []string{"transition", "run", "-year", "2025", "-school", "escola-s"}, wantErr: errHelp},
		{name: "run: bad year", args: []string{"transition", "run", "-year", "abc"}, wantErrStr: "invalid value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _, _ := setup(t, readyReport(), "")
			err := cli.run(context.Background(), tt.args)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantErrStr != "" {
				assert.Contains(t, err.Error(), tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_check(t *testing.T) {
	report := readyReport()
	report.Ready = false
	report.PendingGrades = &models.PendingGradesReport{Sections: []models.PendingSection{{
		Key:  models.PendingSectionKey{GradeLevel: "6º Ano", Section: "6A", Shift: models.ShiftMorning},
		Term: models.TermFourth,
		Students: map[string]*models.PendingStudent{
			"s1": {Name: "Carla", SubjectsMissing: []string{"Matemática", "Português"}},
		},
	}}}
	report.PendingSummary = report.PendingGrades.Summary()
	cli, _, out := setup(t, report, "")

	require.NoError(t, cli.run(context.Background(), []string{"transition", "check", "-year", "2025", "-school", "escola-s"}))
	assert.Contains(t, out.String(), "Calendário: encerrado (fim 19/12/2025)")
	assert.Contains(t, out.String(), "4º bimestre - 6º Ano - 6A (MATUTINO)")
	assert.Contains(t, out.String(), "Carla: Matemática, Português")
	assert.Contains(t, out.String(), "Transição bloqueada.")
}

func Test_commandLine_runDryRun(t *testing.T) {
	cli, stub, out := setup(t, readyReport(), "")
	readPasswordFunc = func(fd int) ([]byte, error) { return nil, errors.New("must not prompt on dry-run") }

	err := cli.run(context.Background(), []string{"transition", "run", "-year", "2025", "-school", "escola-s", "-operator", "secretaria@escola.gov.br", "-dry-run"})
	require.NoError(t, err)
	require.Len(t, stub.requests, 1)
	assert.True(t, stub.requests[0].DryRun)
	assert.Empty(t, stub.requests[0].Password)
	assert.Contains(t, out.String(), "[SIMULAÇÃO] ENROLLMENTS_CLOSED")
	assert.Contains(t, out.String(), "SIMULAÇÃO (nenhuma alteração gravada): 2025 → 2026")
	assert.Contains(t, out.String(), "Matrículas encerradas: 3")
}

func Test_commandLine_runConfirmed(t *testing.T) {
	cli, stub, out := setup(t, readyReport(), "sim\n")

	err := cli.run(context.Background(), []string{"transition", "run", "-year", "2025", "-school", "escola-s", "-operator", "secretaria@escola.gov.br", "-backup-override"})
	require.NoError(t, err)
	require.Len(t, stub.requests, 1)
	req := stub.requests[0]
	assert.Equal(t, "op-1", req.OperatorID)
	assert.Equal(t, "segredo", req.Password)
	assert.True(t, req.BackupOverride)
	assert.Contains(t, out.String(), "Resultado: 2025 → 2026, status sucesso")
}

func Test_commandLine_runDeclined(t *testing.T) {
	cli, stub, _ := setup(t, readyReport(), "n\n")

	err := cli.run(context.Background(), []string{"transition", "run", "-year", "2025", "-school", "escola-s", "-operator", "secretaria@escola.gov.br"})
	assert.ErrorIs(t, err, appErrors.ErrConfirmationAbort)
	assert.Empty(t, stub.requests)
}

func Test_commandLine_runBlocked(t *testing.T) {
	report := readyReport()
	report.Ready = false
	cli, stub, _ := setup(t, report, "")

	err := cli.run(context.Background(), []string{"transition", "run", "-year", "2025", "-school", "escola-s", "-operator", "secretaria@escola.gov.br", "-yes"})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	assert.Empty(t, stub.requests)

	cli, _, _ = setup(t, readyReport(), "")
	err = cli.run(context.Background(), []string{"transition", "run", "-year", "2025", "-school", "escola-s", "-operator", "ninguem@escola.gov.br", "-yes"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func Test_commandLine_runRequiresOperatorRole(t *testing.T) {
	cli, stub, _ := setup(t, readyReport(), "")

	err := cli.run(context.Background(), []string{"transition", "run", "-year", "2025", "-school", "escola-s", "-operator", "leitura@escola.gov.br", "-yes"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, stub.requests)
}
