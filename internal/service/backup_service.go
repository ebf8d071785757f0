package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
	"github.com/noah-isme/ano-letivo-api/pkg/storage"
)

const backupPrefix = "backup_"

type backupStorage interface {
	Latest(prefix string) (storage.FileInfo, bool, error)
	Create(filename string) (io.WriteCloser, error)
	Delete(filename string) error
	Path(filename string) string
	CleanupBefore(cutoff time.Time) ([]string, error)
}

// CommandRunner executes an external command writing its stdout to out.
type CommandRunner func(ctx context.Context, name string, args []string, out io.Writer, errOut io.Writer) error

// ExecRunner runs commands through os/exec.
func ExecRunner(ctx context.Context, name string, args []string, out io.Writer, errOut io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = errOut
	return cmd.Run()
}

// BackupConfig tunes the backup gate. A zero Retention keeps every dump.
type BackupConfig struct {
	MaxAge    time.Duration
	Retention time.Duration
	Command   string
	Timeout   time.Duration
	DSN       string
}

// BackupResult describes the artifact the gate relied on.
type BackupResult struct {
	File      string    `json:"file,omitempty"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Reused    bool      `json:"reused"`
	Skipped   bool      `json:"skipped"`
}

// BackupService makes sure a recent database dump exists before a transition commits.
type BackupService struct {
	storage backupStorage
	run     CommandRunner
	cfg     BackupConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewBackupService constructs the service. A nil runner uses ExecRunner.
func NewBackupService(store backupStorage, run CommandRunner, cfg BackupConfig, logger *zap.Logger) *BackupService {
	if run == nil {
		run = ExecRunner
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Command == "" {
		cfg.Command = "pg_dump"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{storage: store, run: run, cfg: cfg, logger: logger, now: time.Now}
}

// Ensure reuses a dump younger than MaxAge or produces a new one; a dump dated after now is
// never reused. When the dump fails and override is set the failure is logged and the gate
// lets the run continue.
func (s *BackupService) Ensure(ctx context.Context, override bool) (*BackupResult, error) {
	now := s.now()
	latest, found, err := s.storage.Latest(backupPrefix)
	if err != nil {
		s.logger.Warn("backup lookup failed", zap.Error(err))
	} else if age := now.Sub(latest.ModTime); found && age >= 0 && age <= s.cfg.MaxAge {
		s.logger.Info("recent backup found", zap.String("file", latest.Name), zap.Time("created_at", latest.ModTime))
		return &BackupResult{File: latest.Name, Path: s.storage.Path(latest.Name), CreatedAt: latest.ModTime, Reused: true}, nil
	}

	name := fmt.Sprintf("%s%s.sql", backupPrefix, now.UTC().Format("20060102_150405"))
	if err := s.dump(ctx, name); err != nil {
		_ = s.storage.Delete(name)
		if override {
			s.logger.Warn("backup failed, continuing on operator override", zap.Error(err))
			return &BackupResult{CreatedAt: now, Skipped: true}, nil
		}
		s.logger.Error("backup failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrBackupFailed.Code, appErrors.ErrBackupFailed.Status, "database backup failed; retry or confirm override")
	}
	s.logger.Info("backup created", zap.String("file", name))
	s.prune(now)
	return &BackupResult{File: name, Path: s.storage.Path(name), CreatedAt: now}, nil
}

func (s *BackupService) dump(ctx context.Context, name string) error {
	out, err := s.storage.Create(name)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	args := []string{"--no-owner", "--no-privileges", "--format=plain"}
	if s.cfg.DSN != "" {
		args = append(args, "--dbname", s.cfg.DSN)
	}
	runErr := s.run(ctx, s.cfg.Command, args, out, &stderr)
	closeErr := out.Close()
	if runErr != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", s.cfg.Command, runErr, msg)
		}
		return fmt.Errorf("%s: %w", s.cfg.Command, runErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close backup file: %w", closeErr)
	}
	return nil
}

func (s *BackupService) prune(now time.Time) {
	if s.cfg.Retention <= 0 {
		return
	}
	removed, err := s.storage.CleanupBefore(now.Add(-s.cfg.Retention))
	if err != nil {
		s.logger.Warn("backup retention cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("old backups removed", zap.Strings("files", removed))
	}
}
