package models

import "time"

// RunStatus tracks a background transition run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// TransitionRun is the snapshot exposed while a run executes in the background.
type TransitionRun struct {
	ID         string            `json:"id"`
	OriginYear int               `json:"origin_year"`
	SchoolID   string            `json:"school_id"`
	OperatorID string            `json:"operator_id"`
	DryRun     bool              `json:"dry_run"`
	RequestID  string            `json:"request_id,omitempty"`
	Status     RunStatus         `json:"status"`
	State      TransitionState   `json:"state"`
	Events     []ProgressEvent   `json:"events"`
	Result     *TransitionResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
