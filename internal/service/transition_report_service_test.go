package service

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
	"github.com/noah-isme/ano-letivo-api/pkg/storage"
)

func sampleTransitionResult(dryRun bool) *models.TransitionResult {
	return &models.TransitionResult{
		RunID:           "run-1",
		OriginYear:      2025,
		DestinationYear: 2026,
		SchoolID:        "escola-s",
		DryRun:          dryRun,
		Status:          models.AuditStatusSuccess,
		Counters:        models.TransitionCounters{ClosedEnrollments: 3, CreatedEnrollments: 2, Promoted: 1, Retained: 1, Graduates: 1},
		DurationSeconds: 1.5,
		Placements: []models.StudentPlacement{
			{StudentID: "stu-a", StudentName: "Ana", OriginSectionID: "sec-6a", DestinationSectionID: "sec-7a", Outcome: models.OutcomePromoted, Average: 72},
			{StudentID: "stu-b", OriginSectionID: "sec-9a", Outcome: models.OutcomeGraduate, Average: 85},
		},
	}
}

func newReportFixture(t *testing.T, format string) (*TransitionReportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("report-secret", time.Hour)
	return NewTransitionReportService(store, signer, format, nil, nil, nil), store
}

func TestTransitionReportCSV(t *testing.T) {
	svc, store := newReportFixture(t, "csv")

	artifact, err := svc.Generate(context.Background(), sampleTransitionResult(false))
	require.NoError(t, err)
	assert.Equal(t, "transicoes/escola-s/transicao_2025_2026_run-1.csv", artifact.RelativePath)
	assert.NotEmpty(t, artifact.Token)

	data, err := os.ReadFile(store.Path(artifact.RelativePath))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Matrículas encerradas;3")
	assert.Contains(t, content, "Ana;PROMOVIDO;72.00;sec-6a;sec-7a")
	assert.Contains(t, content, "stu-b;CONCLUINTE")
	assert.NotContains(t, content, "SIMULAÇÃO")

	download, err := svc.ResolveDownload(context.Background(), artifact.Token)
	require.NoError(t, err)
	assert.Equal(t, "transicao_2025_2026_run-1.csv", download.Filename)
	assert.Equal(t, ReportFormatCSV, download.Format)
	assert.Equal(t, store.Path(artifact.RelativePath), download.Path)
}

func TestTransitionReportPDFMarksSimulation(t *testing.T) {
	svc, store := newReportFixture(t, "pdf")

	artifact, err := svc.Generate(context.Background(), sampleTransitionResult(true))
	require.NoError(t, err)
	assert.Equal(t, "transicoes/escola-s/transicao_2025_2026_simulacao_run-1.pdf", artifact.RelativePath)
	assert.Equal(t, ReportFormatPDF, artifact.Format)

	data, err := os.ReadFile(store.Path(artifact.RelativePath))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	dataset := buildTransitionDataset(sampleTransitionResult(true))
	require.NotEmpty(t, dataset.Summary)
	assert.Equal(t, "SIMULAÇÃO", dataset.Summary[0].Value)
	assert.Contains(t, reportTitle(sampleTransitionResult(true)), "SIMULAÇÃO")
}

func TestTransitionReportRejectsInvalidToken(t *testing.T) {
	svc, _ := newReportFixture(t, "pdf")

	_, err := svc.ResolveDownload(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
