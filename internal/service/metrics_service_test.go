package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsObserveTransition(t *testing.T) {
	m := NewMetricsService()

	m.ObserveTransition(&models.TransitionResult{
		Status:          models.AuditStatusSuccess,
		DurationSeconds: 2,
		Counters:        models.TransitionCounters{ClosedEnrollments: 3, CreatedEnrollments: 2, Promoted: 1, Retained: 1, Graduates: 1},
	})
	m.ObserveTransition(&models.TransitionResult{Status: models.AuditStatusRollback, DryRun: true, Counters: models.TransitionCounters{ClosedEnrollments: 50}})
	m.ObserveTransition(&models.TransitionResult{Status: models.AuditStatusError})
	m.ObservePreconditionRefusal("pending_grades")
	m.ObserveAuditFailure()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/transicoes", http.StatusAccepted, 20*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `transicao_execucoes_total{dry_run="false",status="sucesso"} 1`)
	assert.Contains(t, body, `transicao_execucoes_total{dry_run="true",status="rollback"} 1`)
	assert.Contains(t, body, `transicao_matriculas_total{operation="encerradas"} 3`)
	assert.Contains(t, body, `transicao_alunos_total{outcome="CONCLUINTE"} 1`)
	assert.Contains(t, body, `transicao_precondicoes_recusadas_total{reason="pending_grades"} 1`)
	assert.Contains(t, body, `transicao_auditoria_falhas_total 1`)

	snapshot := m.Snapshot()
	assert.Equal(t, uint64(3), snapshot.TransitionsTotal)
	assert.Equal(t, uint64(1), snapshot.TransitionsFailed)
	assert.Equal(t, uint64(1), snapshot.RequestsTotal)
	assert.InDelta(t, 20.0, snapshot.AverageRequestDurationMs, 0.001)
}

func TestMetricsNilServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveTransition(&models.TransitionResult{})
	m.ObservePreconditionRefusal("lock")
	m.ObserveAuditFailure()
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	assert.Zero(t, m.Snapshot().TransitionsTotal)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
