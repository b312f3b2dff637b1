package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/automation-api/internal/domain/model"
)

func TestCreateReturnsIsolatedSnapshot(t *testing.T) {
	r := New(Options{})
	job := r.Create(CreateParams{
		ServiceKind: "damco_tracking_maersk",
		UserID:      "user-1",
		InputFiles:  []model.InputFile{{Name: "shipments.csv"}},
		CreditsUsed: 10,
	})

	require.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.NotNil(t, job.Log)

	// Mutating the returned snapshot must not leak into the store.
	job.Log = append(job.Log, "tampered")
	job.InputFiles[0].Name = "tampered.csv"

	stored, err := r.Snapshot(job.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Log)
	assert.Equal(t, "shipments.csv", stored.InputFiles[0].Name)
}

func TestSnapshotUnknownJob(t *testing.T) {
	r := New(Options{})
	_, err := r.Snapshot("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)

	err = r.Mutate("nope", func(*model.Job) {})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMutateIsAtomicPerJob(t *testing.T) {
	r := New(Options{})
	job := r.Create(CreateParams{ServiceKind: "example_automation", UserID: "u"})

	const writers = 8
	const appendsPerWriter = 100

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range appendsPerWriter {
				_ = r.Mutate(job.ID, func(j *model.Job) {
					j.Log = append(j.Log, "line")
					j.Progress++
				})
			}
		}()
	}
	wg.Wait()

	snap, err := r.Snapshot(job.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Log, writers*appendsPerWriter)
	assert.Equal(t, writers*appendsPerWriter, snap.Progress)
}

func TestListNewestFirst(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	clock := now
	r := New(Options{Now: func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}})

	first := r.Create(CreateParams{ServiceKind: "a", UserID: "u"})
	second := r.Create(CreateParams{ServiceKind: "b", UserID: "u"})
	third := r.Create(CreateParams{ServiceKind: "c", UserID: "u"})

	jobs := r.List()
	require.Len(t, jobs, 3)
	assert.Equal(t, third.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)
	assert.Equal(t, first.ID, jobs[2].ID)
}

func TestStatsCountsByStatus(t *testing.T) {
	r := New(Options{})
	running := r.Create(CreateParams{ServiceKind: "a", UserID: "u"})
	_ = running

	for _, status := range []model.JobStatus{
		model.JobStatusCompleted, model.JobStatusFailed,
		model.JobStatusFailed, model.JobStatusStopped,
	} {
		job := r.Create(CreateParams{ServiceKind: "a", UserID: "u"})
		require.NoError(t, r.Mutate(job.ID, func(j *model.Job) { j.Status = status }))
	}

	stats := r.Stats()
	assert.Equal(t, model.JobStats{Running: 1, Completed: 1, Failed: 2, Stopped: 1}, stats)
}

func TestDeleteTerminalBefore(t *testing.T) {
	r := New(Options{})
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	endJob := func(status model.JobStatus, endedAt time.Time) string {
		job := r.Create(CreateParams{ServiceKind: "a", UserID: "u"})
		require.NoError(t, r.Mutate(job.ID, func(j *model.Job) {
			j.Status = status
			j.EndedAt = &endedAt
		}))
		return job.ID
	}

	oldCompleted := endJob(model.JobStatusCompleted, now.Add(-48*time.Hour))
	oldFailed := endJob(model.JobStatusFailed, now.Add(-25*time.Hour))
	freshStopped := endJob(model.JobStatusStopped, now.Add(-time.Hour))
	running := r.Create(CreateParams{ServiceKind: "a", UserID: "u"})

	removed := r.DeleteTerminalBefore(now.Add(-24 * time.Hour))
	assert.Equal(t, 2, removed)

	_, err := r.Snapshot(oldCompleted)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = r.Snapshot(oldFailed)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = r.Snapshot(freshStopped)
	assert.NoError(t, err)
	_, err = r.Snapshot(running.ID)
	assert.NoError(t, err)
}
