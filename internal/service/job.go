// Package service holds the business-logic facade between the HTTP surface
// and the orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuflow/automation-api/internal/core"
	"github.com/docuflow/automation-api/internal/domain/model"
	apperrors "github.com/docuflow/automation-api/internal/errors"
	"github.com/docuflow/automation-api/internal/orchestrator"
	"github.com/docuflow/automation-api/internal/registry"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Registry     *registry.Registry         // Required: job store
	Orchestrator *orchestrator.Orchestrator // Required: lifecycle controller
	Ledger       core.CreditLedger          // Required: charge collaborator
	Catalog      model.Catalog              // Required: service catalog
	ResultsDir   string                     // Required: shared results area
	Logger       *slog.Logger               // Optional: structured logger
}

// JobService provides business logic for automation job operations.
//
// This service manages:
// - Start validation, credit charging, and launch dispatch
// - Status snapshots and listings for the dashboard
// - User-initiated cancellation
// - Result file retrieval with log-dump degradation.
type JobService struct {
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	ledger       core.CreditLedger
	catalog      model.Catalog
	resultsDir   string
	logger       *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Registry == nil {
		return nil, errors.New("Registry is required")
	}
	if opts.Orchestrator == nil {
		return nil, errors.New("Orchestrator is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("Ledger is required")
	}
	if len(opts.Catalog) == 0 {
		return nil, errors.New("Catalog is required")
	}
	if opts.ResultsDir == "" {
		return nil, errors.New("ResultsDir is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		registry:     opts.Registry,
		orchestrator: opts.Orchestrator,
		ledger:       opts.Ledger,
		catalog:      opts.Catalog,
		resultsDir:   opts.ResultsDir,
		logger:       logger,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// StartJob validates the request, charges the user's credits, and dispatches
// the launch. It returns the initial job snapshot; any error after dispatch
// is reported only through the job's status and log.
//
// Credits are charged up front and refunded by the orchestrator if the run
// fails. Cancelling does not refund.
func (s *JobService) StartJob(ctx context.Context, req *model.StartJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("start job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid start job request")
	}

	def, ok := s.catalog.Lookup(req.ServiceKind)
	if !ok {
		return nil, apperrors.ValidationField("service_kind",
			fmt.Sprintf("unknown or disabled service: %s", req.ServiceKind))
	}

	cost := def.CreditCost * len(req.InputFiles)
	if cost < def.CreditCost {
		cost = def.CreditCost
	}

	if err := s.ledger.Charge(ctx, req.UserID, cost); err != nil {
		switch {
		case errors.Is(err, core.ErrInsufficientCredits):
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "insufficient credits")
		case errors.Is(err, core.ErrAccountNotFound):
			return nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "credit account not found")
		default:
			return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "charge credits")
		}
	}

	job := s.orchestrator.Start(orchestrator.StartParams{
		ServiceKind: def.Kind,
		Script:      def.Script,
		UserID:      req.UserID,
		InputFiles:  req.InputFiles,
		CreditsUsed: cost,
		ExtraEnv:    scriptEnv(req),
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job dispatched",
			"id", job.ID,
			"service_kind", def.Kind,
			"user_id", req.UserID,
			"credits", cost,
		)
	}
	return job, nil
}

// GetJobStatus returns a snapshot of the job.
func (s *JobService) GetJobStatus(_ context.Context, id string) (*model.Job, error) {
	job, err := s.registry.Snapshot(id)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "job %s not found", id)
	}
	return job, nil
}

// CancelJob requests a stop. Cancelling an already-terminal job acknowledges
// without effect.
func (s *JobService) CancelJob(ctx context.Context, id string) error {
	if err := s.orchestrator.Stop(ctx, id); err != nil {
		if errors.Is(err, registry.ErrJobNotFound) {
			return apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "job %s not found", id)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "cancel job")
	}
	return nil
}

// ListRecent returns snapshots of the most recent jobs, newest first.
func (s *JobService) ListRecent(_ context.Context, limit int) []*model.Job {
	jobs := s.registry.List()
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// Stats returns counts of jobs per status.
func (s *JobService) Stats(_ context.Context) model.JobStats {
	return s.registry.Stats()
}

// FetchResultFile returns the bytes of a named result artifact.
//
// Only completed jobs have results; the name must be one the collector
// listed. A listed name can still be absent on disk (synthesized fallback):
// text-like names degrade to a plain-text dump of the job log so the user
// always gets something to download.
func (s *JobService) FetchResultFile(_ context.Context, id, name string) ([]byte, error) {
	job, err := s.registry.Snapshot(id)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "job %s not found", id)
	}
	if job.Status != model.JobStatusCompleted {
		return nil, apperrors.Conflict("job results are only available once the job completes")
	}

	if name != filepath.Base(name) || !listedResult(job.ResultFiles, name) {
		return nil, apperrors.NotFoundf("result file %s not found", name)
	}

	content, err := os.ReadFile(filepath.Join(s.resultsDir, name))
	if err == nil {
		return content, nil
	}
	if !os.IsNotExist(err) {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "read result file %s", name)
	}

	if isTextLike(name) {
		return logDump(job), nil
	}
	return nil, apperrors.NotFoundf("result file %s not found", name)
}

func listedResult(results []string, name string) bool {
	for _, r := range results {
		if r == name {
			return true
		}
	}
	return false
}

func isTextLike(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".txt" || ext == ".log"
}

func logDump(job *model.Job) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s automation run %s\n", job.ServiceKind, job.ID)
	fmt.Fprintf(&b, "Started: %s\n", job.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if job.EndedAt != nil {
		fmt.Fprintf(&b, "Ended:   %s\n", job.EndedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	b.WriteString("\n")
	for _, line := range job.Log {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// scriptEnv builds the environment passed to the automation script.
// Credential values go through the environment only; they are never written
// to the job log or the structured logs.
func scriptEnv(req *model.StartJobRequest) []string {
	var env []string
	if req.Credentials != nil {
		if req.Credentials.Username != "" {
			env = append(env, "PORTAL_USERNAME="+req.Credentials.Username)
		}
		if req.Credentials.Password != "" {
			env = append(env, "PORTAL_PASSWORD="+req.Credentials.Password)
		}
	}
	for key, value := range req.Parameters {
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		key = strings.ReplaceAll(key, "-", "_")
		env = append(env, "AUTOMATION_"+key+"="+value)
	}
	return env
}
