package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValid(t *testing.T) {
	for _, status := range []JobStatus{
		JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusStopped,
	} {
		assert.True(t, status.Valid(), string(status))
	}
	assert.False(t, JobStatus("paused").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusStopped.Terminal())
}

func TestJobCloneIsDeep(t *testing.T) {
	ended := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	job := &Job{
		ID:          "j1",
		ServiceKind: "damco_tracking_maersk",
		Status:      JobStatusCompleted,
		EndedAt:     &ended,
		InputFiles:  []InputFile{{Name: "a.csv"}},
		Log:         []string{"🚀 Starting"},
		ResultFiles: []string{"report.xlsx"},
	}

	clone := job.Clone()
	clone.Log[0] = "tampered"
	clone.InputFiles[0].Name = "tampered.csv"
	clone.ResultFiles[0] = "tampered.xlsx"
	*clone.EndedAt = ended.Add(time.Hour)

	assert.Equal(t, "🚀 Starting", job.Log[0])
	assert.Equal(t, "a.csv", job.InputFiles[0].Name)
	assert.Equal(t, "report.xlsx", job.ResultFiles[0])
	assert.Equal(t, ended, *job.EndedAt)

	var nilJob *Job
	assert.Nil(t, nilJob.Clone())
}

func TestStartJobRequestValidate(t *testing.T) {
	valid := StartJobRequest{
		ServiceKind: "damco_tracking_maersk",
		UserID:      "user-1",
		InputFiles:  []InputFile{{Name: "a.csv"}},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*StartJobRequest)
	}{
		{name: "missing service kind", mutate: func(r *StartJobRequest) { r.ServiceKind = " " }},
		{name: "missing user id", mutate: func(r *StartJobRequest) { r.UserID = "" }},
		{name: "no input files", mutate: func(r *StartJobRequest) { r.InputFiles = nil }},
		{name: "blank file name", mutate: func(r *StartJobRequest) { r.InputFiles[0].Name = "  " }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			req.InputFiles = append([]InputFile(nil), valid.InputFiles...)
			tc.mutate(&req)
			assert.Error(t, req.Validate())
		})
	}
}
