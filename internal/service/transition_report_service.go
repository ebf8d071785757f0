package service

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
	"github.com/noah-isme/ano-letivo-api/pkg/export"
	"github.com/noah-isme/ano-letivo-api/pkg/storage"
)

type reportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Path(filename string) string
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ReportFormat selects the rendered document type.
type ReportFormat string

const (
	ReportFormatPDF ReportFormat = "pdf"
	ReportFormatCSV ReportFormat = "csv"
)

// ReportArtifact describes a generated transition report.
type ReportArtifact struct {
	RelativePath string       `json:"relative_path"`
	Token        string       `json:"token"`
	Format       ReportFormat `json:"format"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ReportDownload resolves a signed token into a file on disk.
type ReportDownload struct {
	Path     string
	Filename string
	Format   ReportFormat
}

// TransitionReportService renders run counters into a PDF or CSV document.
type TransitionReportService struct {
	storage reportFileStorage
	signer  *storage.SignedURLSigner
	csv     csvRenderer
	pdf     pdfRenderer
	format  ReportFormat
	logger  *zap.Logger
}

// NewTransitionReportService constructs the report generator.
func NewTransitionReportService(store reportFileStorage, signer *storage.SignedURLSigner, format string, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *TransitionReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	f := ReportFormat(format)
	if f != ReportFormatCSV {
		f = ReportFormatPDF
	}
	return &TransitionReportService{storage: store, signer: signer, csv: csv, pdf: pdf, format: f, logger: logger}
}

// Generate renders and stores the report for a finished run.
func (s *TransitionReportService) Generate(ctx context.Context, result *models.TransitionResult) (*ReportArtifact, error) {
	if result == nil {
		return nil, fmt.Errorf("transition result required")
	}
	dataset := buildTransitionDataset(result)
	title := reportTitle(result)

	var (
		payload []byte
		err     error
	)
	switch s.format {
	case ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	default:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, fmt.Errorf("render transition report: %w", err)
	}

	suffix := ""
	if result.DryRun {
		suffix = "_simulacao"
	}
	rel := fmt.Sprintf("transicoes/%s/transicao_%d_%d%s_%s.%s", result.SchoolID, result.OriginYear, result.DestinationYear, suffix, result.RunID, s.format)
	if _, err := s.storage.Save(rel, payload); err != nil {
		return nil, fmt.Errorf("store transition report: %w", err)
	}

	artifact := &ReportArtifact{RelativePath: rel, Format: s.format}
	if s.signer != nil {
		token, expiresAt, err := s.signer.Generate(result.RunID, rel)
		if err != nil {
			return nil, fmt.Errorf("sign transition report: %w", err)
		}
		artifact.Token = token
		artifact.ExpiresAt = expiresAt
	}
	s.logger.Info("transition report generated", zap.String("run_id", result.RunID), zap.String("path", rel))
	return artifact, nil
}

// ResolveDownload validates a signed token and returns the file to stream.
func (s *TransitionReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report downloads are disabled")
	}
	_, rel, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired report link")
	}
	format := ReportFormatPDF
	if strings.HasSuffix(rel, ".csv") {
		format = ReportFormatCSV
	}
	return &ReportDownload{Path: s.storage.Path(rel), Filename: path.Base(rel), Format: format}, nil
}

func reportTitle(result *models.TransitionResult) string {
	title := fmt.Sprintf("Transição de Ano Letivo %d → %d", result.OriginYear, result.DestinationYear)
	if result.DryRun {
		title += " (SIMULAÇÃO)"
	}
	return title
}

func buildTransitionDataset(result *models.TransitionResult) export.Dataset {
	c := result.Counters
	summary := []export.Field{
		{Label: "Escola", Value: result.SchoolID},
		{Label: "Ano de origem", Value: strconv.Itoa(result.OriginYear)},
		{Label: "Ano de destino", Value: strconv.Itoa(result.DestinationYear)},
		{Label: "Status", Value: string(result.Status)},
		{Label: "Matrículas encerradas", Value: strconv.Itoa(c.ClosedEnrollments)},
		{Label: "Matrículas criadas", Value: strconv.Itoa(c.CreatedEnrollments)},
		{Label: "Alunos promovidos", Value: strconv.Itoa(c.Promoted)},
		{Label: "Alunos retidos", Value: strconv.Itoa(c.Retained)},
		{Label: "Alunos concluintes", Value: strconv.Itoa(c.Graduates)},
		{Label: "Alunos excluídos", Value: strconv.Itoa(c.Excluded)},
		{Label: "Duração (s)", Value: strconv.FormatFloat(result.DurationSeconds, 'f', 2, 64)},
	}
	if c.DuplicateEnrollments > 0 {
		summary = append(summary, export.Field{Label: "Matrículas duplicadas", Value: strconv.Itoa(c.DuplicateEnrollments)})
	}
	if c.WithoutProgression > 0 {
		summary = append(summary, export.Field{Label: "Alunos sem progressão", Value: strconv.Itoa(c.WithoutProgression)})
	}
	if result.DryRun {
		summary = append([]export.Field{{Label: "Modo", Value: "SIMULAÇÃO"}}, summary...)
	}

	headers := []string{"Aluno", "Situação", "Média", "Turma de origem", "Turma de destino"}
	rows := make([]map[string]string, 0, len(result.Placements))
	for _, p := range result.Placements {
		name := p.StudentName
		if name == "" {
			name = p.StudentID
		}
		rows = append(rows, map[string]string{
			"Aluno":            name,
			"Situação":         string(p.Outcome),
			"Média":            strconv.FormatFloat(p.Average, 'f', 2, 64),
			"Turma de origem":  p.OriginSectionID,
			"Turma de destino": p.DestinationSectionID,
		})
	}
	return export.Dataset{Summary: summary, Headers: headers, Rows: rows}
}
