// Package registry provides the in-memory job store. It is the single shared
// mutable structure of the orchestrator: every component reads and writes job
// state through it, and per-job mutations are serialized so read-modify-write
// cycles never interleave on the same id.
//
// The store is deliberately process-local. Job state does not survive a
// restart of the host process; retention of finished jobs is handled by the
// sweeper service, never by the orchestrator itself.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/automation-api/internal/domain/model"
)

// ErrJobNotFound is returned when a job id is not present in the registry.
var ErrJobNotFound = errors.New("job not found")

// Options configures a Registry.
type Options struct {
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Registry is a concurrently accessible job store keyed by job id.
//
// The outer lock guards only the map; each entry carries its own mutex so
// mutations on different jobs never block each other.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry
	now  func() time.Time
}

type entry struct {
	mu  sync.Mutex
	job *model.Job
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		jobs: make(map[string]*entry),
		now:  now,
	}
}

// CreateParams holds the immutable fields of a new job record.
type CreateParams struct {
	ServiceKind string
	UserID      string
	InputFiles  []model.InputFile
	CreditsUsed int
}

// Create mints a new job record in the running state and returns a snapshot.
// Job ids are unique and never reused.
func (r *Registry) Create(params CreateParams) *model.Job {
	job := &model.Job{
		ID:          uuid.NewString(),
		ServiceKind: params.ServiceKind,
		UserID:      params.UserID,
		Status:      model.JobStatusRunning,
		Progress:    0,
		StartedAt:   r.now(),
		InputFiles:  append([]model.InputFile(nil), params.InputFiles...),
		Log:         []string{},
		CreditsUsed: params.CreditsUsed,
	}

	r.mu.Lock()
	r.jobs[job.ID] = &entry{job: job}
	r.mu.Unlock()

	return job.Clone()
}

func (r *Registry) entry(id string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.jobs[id]
	r.mu.RUnlock()
	return e, ok
}

// Snapshot returns a deep copy of the job record.
func (r *Registry) Snapshot(id string) (*model.Job, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Mutate applies fn to the live job record, atomically with respect to other
// mutations on the same id. fn must not retain the record beyond the call.
func (r *Registry) Mutate(id string, fn func(job *model.Job)) error {
	e, ok := r.entry(id)
	if !ok {
		return ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.job)
	return nil
}

// List returns snapshots of all jobs, newest first.
func (r *Registry) List() []*model.Job {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.jobs))
	for _, e := range r.jobs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	jobs := make([]*model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job.Clone())
		e.mu.Unlock()
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

// Stats returns counts of jobs by status.
func (r *Registry) Stats() model.JobStats {
	var stats model.JobStats
	for _, job := range r.List() {
		switch job.Status {
		case model.JobStatusRunning:
			stats.Running++
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusFailed:
			stats.Failed++
		case model.JobStatusStopped:
			stats.Stopped++
		}
	}
	return stats
}

// DeleteTerminalBefore removes terminal jobs that ended before cutoff and
// returns how many were removed. Running jobs are never touched. This is the
// retention sweep entry point; nothing in the orchestrator calls it.
func (r *Registry) DeleteTerminalBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.jobs {
		e.mu.Lock()
		expired := e.job.Status.Terminal() &&
			e.job.EndedAt != nil && e.job.EndedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}
