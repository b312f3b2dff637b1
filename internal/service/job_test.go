package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/automation-api/internal/core"
	"github.com/docuflow/automation-api/internal/data"
	"github.com/docuflow/automation-api/internal/domain/model"
	apperrors "github.com/docuflow/automation-api/internal/errors"
	"github.com/docuflow/automation-api/internal/orchestrator"
	"github.com/docuflow/automation-api/internal/registry"
)

type stubProcess struct{}

func (stubProcess) Stdout() io.Reader { return strings.NewReader("") }
func (stubProcess) Stderr() io.Reader { return strings.NewReader("") }
func (stubProcess) Wait() error       { return nil }
func (stubProcess) Signal() error     { return nil }

type stubLauncher struct {
	mu     sync.Mutex
	called bool
	script string
	env    []string
}

func (l *stubLauncher) Launch(_ context.Context, script, _ string, extraEnv []string) (orchestrator.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.called = true
	l.script = script
	l.env = append([]string(nil), extraEnv...)
	return stubProcess{}, nil
}

func (l *stubLauncher) snapshot() (bool, string, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.called, l.script, append([]string(nil), l.env...)
}

type serviceFixture struct {
	svc        *JobService
	registry   *registry.Registry
	ledger     *data.MemoryLedger
	launcher   *stubLauncher
	uploadsDir string
	resultsDir string
}

func newServiceFixture(t *testing.T, balances map[string]int) *serviceFixture {
	t.Helper()
	reg := registry.New(registry.Options{})
	ledger := data.NewMemoryLedger(balances)
	launcher := &stubLauncher{}
	uploads := t.TempDir()
	results := t.TempDir()

	orch, err := orchestrator.New(orchestrator.Options{
		Registry:   reg,
		Launcher:   launcher,
		Ledger:     ledger,
		UploadsDir: uploads,
		ResultsDir: results,
	})
	require.NoError(t, err)

	svc, err := NewJobService(JobServiceOptions{
		Registry:     reg,
		Orchestrator: orch,
		Ledger:       ledger,
		Catalog:      model.DefaultCatalog(),
		ResultsDir:   results,
	})
	require.NoError(t, err)

	return &serviceFixture{
		svc:        svc,
		registry:   reg,
		ledger:     ledger,
		launcher:   launcher,
		uploadsDir: uploads,
		resultsDir: results,
	}
}

func (f *serviceFixture) stageUpload(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.uploadsDir, "1756000000_"+name), []byte("x"), 0o600))
}

func startRequest(files ...string) *model.StartJobRequest {
	inputs := make([]model.InputFile, 0, len(files))
	for _, f := range files {
		inputs = append(inputs, model.InputFile{Name: f})
	}
	return &model.StartJobRequest{
		ServiceKind: "damco_tracking_maersk",
		UserID:      "user-1",
		InputFiles:  inputs,
	}
}

func TestNewJobServiceValidation(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{})
	require.Error(t, err)

	assert.Panics(t, func() { MustNewJobService(JobServiceOptions{}) })
}

func TestStartJobRequestValidation(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.StartJob(ctx, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.StartJob(ctx, &model.StartJobRequest{ServiceKind: "damco_tracking_maersk"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestStartJobUnknownService(t *testing.T) {
	f := newServiceFixture(t, map[string]int{"user-1": 100})

	req := startRequest("a.csv")
	req.ServiceKind = "does_not_exist"
	_, err := f.svc.StartJob(context.Background(), req)
	require.True(t, apperrors.IsValidation(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "service_kind", appErr.Field)
}

func TestStartJobInsufficientCredits(t *testing.T) {
	f := newServiceFixture(t, map[string]int{"user-1": 5})

	_, err := f.svc.StartJob(context.Background(), startRequest("a.csv"))
	require.True(t, apperrors.IsValidation(err))
	assert.ErrorIs(t, err, core.ErrInsufficientCredits)

	// The charge was declined, so no job record exists.
	assert.Empty(t, f.registry.List())
}

func TestStartJobUnknownAccount(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.StartJob(context.Background(), startRequest("a.csv"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStartJobChargesPerInputFile(t *testing.T) {
	f := newServiceFixture(t, map[string]int{"user-1": 30})
	f.stageUpload(t, "a.csv")

	job, err := f.svc.StartJob(context.Background(), startRequest("a.csv", "b.csv"))
	require.NoError(t, err)
	assert.Equal(t, 20, job.CreditsUsed)
	assert.Equal(t, model.JobStatusRunning, job.Status)

	balance, err := f.ledger.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestStartJobForwardsCredentialsThroughEnv(t *testing.T) {
	f := newServiceFixture(t, map[string]int{"user-1": 100})
	f.stageUpload(t, "a.csv")

	req := startRequest("a.csv")
	req.Credentials = &model.Credentials{Username: "alice", Password: "s3cret"}
	req.Parameters = map[string]string{"report-type": "detailed"}

	job, err := f.svc.StartJob(context.Background(), req)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		called, _, _ := f.launcher.snapshot()
		return called
	}, 2*time.Second, 5*time.Millisecond)

	_, script, env := f.launcher.snapshot()
	assert.Equal(t, "damco_tracking_maersk.py", script)
	assert.Contains(t, env, "PORTAL_USERNAME=alice")
	assert.Contains(t, env, "PORTAL_PASSWORD=s3cret")
	assert.Contains(t, env, "AUTOMATION_REPORT_TYPE=detailed")

	// Credential values never land in the job log.
	snap, err := f.registry.Snapshot(job.ID)
	require.NoError(t, err)
	for _, line := range snap.Log {
		assert.NotContains(t, line, "s3cret")
	}
}

func TestGetJobStatusNotFound(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.GetJobStatus(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCancelJobNotFound(t *testing.T) {
	f := newServiceFixture(t, nil)
	err := f.svc.CancelJob(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListRecentHonorsLimit(t *testing.T) {
	f := newServiceFixture(t, nil)
	for range 5 {
		f.registry.Create(registry.CreateParams{ServiceKind: "a", UserID: "u"})
	}

	assert.Len(t, f.svc.ListRecent(context.Background(), 3), 3)
	assert.Len(t, f.svc.ListRecent(context.Background(), 0), 5)
}

func TestFetchResultFile(t *testing.T) {
	ctx := context.Background()

	completedJob := func(t *testing.T, f *serviceFixture, results []string) string {
		t.Helper()
		job := f.registry.Create(registry.CreateParams{
			ServiceKind: "damco_tracking_maersk",
			UserID:      "user-1",
		})
		require.NoError(t, f.registry.Mutate(job.ID, func(j *model.Job) {
			j.Status = model.JobStatusCompleted
			j.Progress = 100
			ended := time.Now()
			j.EndedAt = &ended
			j.ResultFiles = results
			j.Log = append(j.Log, "🔧 Setting up browser...", "🎉 Automation completed successfully!")
		}))
		return job.ID
	}

	t.Run("unknown job", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		_, err := f.svc.FetchResultFile(ctx, "nope", "report.txt")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("job still running", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		job := f.registry.Create(registry.CreateParams{ServiceKind: "a", UserID: "u"})
		_, err := f.svc.FetchResultFile(ctx, job.ID, "report.txt")
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("unlisted name", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		id := completedJob(t, f, []string{"listed_report.txt"})
		_, err := f.svc.FetchResultFile(ctx, id, "other.txt")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		id := completedJob(t, f, []string{"../secrets.txt"})
		_, err := f.svc.FetchResultFile(ctx, id, "../secrets.txt")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("reads artifact from disk", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		id := completedJob(t, f, []string{"tracking_report.xlsx"})
		require.NoError(t, os.WriteFile(
			filepath.Join(f.resultsDir, "tracking_report.xlsx"), []byte("sheet-bytes"), 0o600))

		content, err := f.svc.FetchResultFile(ctx, id, "tracking_report.xlsx")
		require.NoError(t, err)
		assert.Equal(t, []byte("sheet-bytes"), content)
	})

	t.Run("absent text artifact degrades to log dump", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		id := completedJob(t, f, []string{"damco_tracking_maersk_report_20260829.txt"})

		content, err := f.svc.FetchResultFile(ctx, id, "damco_tracking_maersk_report_20260829.txt")
		require.NoError(t, err)
		text := string(content)
		assert.Contains(t, text, "damco_tracking_maersk automation run")
		assert.Contains(t, text, "🔧 Setting up browser...")
		assert.Contains(t, text, "🎉 Automation completed successfully!")
	})

	t.Run("absent binary artifact stays not found", func(t *testing.T) {
		f := newServiceFixture(t, nil)
		id := completedJob(t, f, []string{"tracking_report.xlsx"})
		_, err := f.svc.FetchResultFile(ctx, id, "tracking_report.xlsx")
		assert.True(t, apperrors.IsNotFound(err))
	})
}
