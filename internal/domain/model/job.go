// Package model defines the core data types for the automation job system.
package model

import (
	"errors"
	"strings"
	"time"
)

// JobStatus represents the current status of an automation job.
type JobStatus string

const (
	// JobStatusRunning indicates the automation task is still executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the task finished with exit code 0.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the task failed to launch or exited non-zero.
	JobStatusFailed JobStatus = "failed"
	// JobStatusStopped indicates the job was cancelled by the user.
	JobStatusStopped JobStatus = "stopped"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed || s == JobStatusStopped
}

// Terminal returns true once no further status transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusStopped
}

// InputFile describes one uploaded input by its user-facing logical name.
// The stored file carries a timestamp prefix; resolution back to a concrete
// path happens at launch time.
type InputFile struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Job represents one invocation of an automation task tied to a user request.
//
// The registry is the single owner of the live record; everything outside the
// registry sees deep-copied snapshots. Progress is monotone while running and
// frozen on any terminal transition (completed forces it to 100).
type Job struct {
	ID          string      `json:"id"`
	ServiceKind string      `json:"service_kind"`
	UserID      string      `json:"user_id"`
	Status      JobStatus   `json:"status"`
	Progress    int         `json:"progress"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"`
	InputFiles  []InputFile `json:"input_files"`
	Log         []string    `json:"log"`
	ResultFiles []string    `json:"result_files,omitempty"`
	CreditsUsed int         `json:"credits_used"`
}

// Clone returns a deep copy of the job. Mutating the copy never affects the
// registry's record.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.EndedAt != nil {
		t := *j.EndedAt
		out.EndedAt = &t
	}
	out.InputFiles = append([]InputFile(nil), j.InputFiles...)
	out.Log = append([]string(nil), j.Log...)
	out.ResultFiles = append([]string(nil), j.ResultFiles...)
	return &out
}

// Credentials carries optional portal credentials forwarded to the automation
// script through its environment. Values are never written to the job log.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// StartJobRequest represents a request to start a new automation job.
type StartJobRequest struct {
	ServiceKind string            `json:"service_kind"`
	UserID      string            `json:"user_id"`
	InputFiles  []InputFile       `json:"input_files"`
	Credentials *Credentials      `json:"credentials,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// Validate validates the StartJobRequest fields.
func (r *StartJobRequest) Validate() error {
	if strings.TrimSpace(r.ServiceKind) == "" {
		return errors.New("service kind is required")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if len(r.InputFiles) == 0 {
		return errors.New("at least one input file is required")
	}
	for i := range r.InputFiles {
		if strings.TrimSpace(r.InputFiles[i].Name) == "" {
			return errors.New("input file name is required")
		}
	}
	return nil
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Stopped   int `json:"stopped"`
}
