// Package orchestrator launches external automation scripts and supervises
// their lifecycle: it resolves input files, feeds script output through the
// line interpreter, owns the running/terminal state machine, triggers credit
// refunds on failure, and collects result artifacts on success.
package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuflow/automation-api/internal/core"
	"github.com/docuflow/automation-api/internal/domain/model"
	"github.com/docuflow/automation-api/internal/notify"
	"github.com/docuflow/automation-api/internal/observability/statsd"
	"github.com/docuflow/automation-api/internal/registry"
)

// progressPublishStep is the minimum progress delta between published status
// events, to keep the dashboard stream compact.
const progressPublishStep = 5

// scanBufferBytes bounds a single script output line.
const scanBufferBytes = 256 * 1024

// Options groups dependencies for the Orchestrator.
type Options struct {
	Registry   *registry.Registry // Required: job store
	Launcher   Launcher           // Required: process launcher
	Ledger     core.CreditLedger  // Required: refund collaborator
	UploadsDir string             // Required: stored uploads scanned by the resolver
	ResultsDir string             // Required: shared results area scanned by the collector
	Logger     *slog.Logger       // Optional: structured logger
	Metrics    statsd.Sink        // Optional: job lifecycle counters
	Events     core.StatusPublisher
	Notifier   *notify.Service
	Now        func() time.Time // Optional: clock override for tests
}

// Orchestrator supervises automation jobs. One goroutine per job; the
// registry is the only shared state between jobs.
type Orchestrator struct {
	registry   *registry.Registry
	launcher   Launcher
	ledger     core.CreditLedger
	uploadsDir string
	resultsDir string
	logger     *slog.Logger
	metrics    statsd.Sink
	events     core.StatusPublisher
	notifier   *notify.Service
	now        func() time.Time

	mu      sync.Mutex
	running map[string]*jobRuntime
}

// jobRuntime tracks per-job state that never leaves the orchestrator: the
// live process handle (held only while running, per the state invariant) and
// the last published progress value.
type jobRuntime struct {
	proc          Process
	lastPublished int
}

// New constructs an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, errors.New("Registry is required")
	}
	if opts.Launcher == nil {
		return nil, errors.New("Launcher is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("Ledger is required")
	}
	if opts.UploadsDir == "" || opts.ResultsDir == "" {
		return nil, errors.New("UploadsDir and ResultsDir are required")
	}

	logger := opts.Logger
	if logger != nil {
		logger = logger.With("component", "orchestrator")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		registry:   opts.Registry,
		launcher:   opts.Launcher,
		ledger:     opts.Ledger,
		uploadsDir: opts.UploadsDir,
		resultsDir: opts.ResultsDir,
		logger:     logger,
		metrics:    opts.Metrics,
		events:     opts.Events,
		notifier:   opts.Notifier,
		now:        now,
	}, nil
}

// MustNew constructs an Orchestrator and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNew(opts Options) *Orchestrator {
	o, err := New(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create orchestrator: %v", err))
	}
	return o
}

// StartParams describes one automation run.
type StartParams struct {
	ServiceKind string
	Script      string
	UserID      string
	InputFiles  []model.InputFile
	CreditsUsed int
	// ExtraEnv is passed to the script environment (credentials, parameters).
	ExtraEnv []string
}

// Start creates the job record and kicks off the launch. It returns
// immediately with a snapshot; execution continues in the background and any
// later error is recorded as a Failed transition, discoverable only through
// the job's status and log.
func (o *Orchestrator) Start(params StartParams) *model.Job {
	job := o.registry.Create(registry.CreateParams{
		ServiceKind: params.ServiceKind,
		UserID:      params.UserID,
		InputFiles:  params.InputFiles,
		CreditsUsed: params.CreditsUsed,
	})
	o.appendLog(job.ID, fmt.Sprintf("🚀 Starting %s automation...", params.ServiceKind))

	if o.logger != nil {
		o.logger.Info("job started",
			"id", job.ID,
			"service_kind", params.ServiceKind,
			"credits", params.CreditsUsed,
		)
	}
	o.count("jobs.started", map[string]string{"service": params.ServiceKind})

	go o.run(job.ID, params)
	return job
}

// Stop transitions a running job to Stopped and signals the underlying task.
//
// The terminal state is set synchronously with the request; process teardown
// is fire-and-forget. Stopping an already-terminal job is a no-op that still
// acknowledges. Unknown ids return registry.ErrJobNotFound.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	now := o.now()
	transitioned := false
	var snapshot *model.Job

	err := o.registry.Mutate(id, func(job *model.Job) {
		if job.Status.Terminal() {
			return
		}
		job.Status = model.JobStatusStopped
		job.EndedAt = &now
		job.Log = append(job.Log, "🛑 Job stopped by user")
		transitioned = true
		snapshot = job.Clone()
	})
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}

	if proc := o.release(id); proc != nil {
		// Best-effort termination; late output is tolerated by the mutation
		// guards and simply appended to the log.
		go func() { _ = proc.Signal() }()
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "job stopped by user", "id", id)
	}
	o.count("jobs.stopped", map[string]string{"service": snapshot.ServiceKind})
	o.publish(ctx, snapshot)
	return nil
}

// run supervises a single job from launch to terminal state.
func (o *Orchestrator) run(id string, params StartParams) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, id, fmt.Errorf("orchestration error: %v", r))
		}
	}()

	inputPath, err := ResolveInput(params.InputFiles[0].Name, o.uploadsDir)
	if err != nil {
		o.fail(ctx, id, err,
			fmt.Sprintf("❌ Input file not found in storage: %s", params.InputFiles[0].Name))
		return
	}
	o.appendLog(id, fmt.Sprintf("📋 Input file: %s", params.InputFiles[0].Name))

	proc, err := o.launcher.Launch(ctx, params.Script, inputPath, params.ExtraEnv)
	if err != nil {
		o.fail(ctx, id, err, launchAdvisory(err)...)
		return
	}
	o.track(id, proc)

	g := new(errgroup.Group)
	g.Go(func() error {
		o.pumpStdout(ctx, id, proc.Stdout())
		return nil
	})
	g.Go(func() error {
		o.pumpStderr(id, proc.Stderr())
		return nil
	})
	_ = g.Wait()

	switch waitErr := proc.Wait(); {
	case waitErr == nil:
		o.complete(ctx, id)
	default:
		o.fail(ctx, id, waitErr, exitAdvisory(waitErr)...)
	}
}

// pumpStdout feeds stdout lines through the interpreter, applying progress
// and log updates in stream order.
func (o *Orchestrator) pumpStdout(ctx context.Context, id string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferBytes)
	for scanner.Scan() {
		line := scanner.Text()
		progress := -1
		_ = o.registry.Mutate(id, func(job *model.Job) {
			res := Interpret(line, job.Progress)
			// Progress is frozen once terminal; log appends stay allowed so
			// output trickling in after a cancel is not lost.
			if !job.Status.Terminal() && res.Progress > job.Progress {
				job.Progress = res.Progress
				progress = res.Progress
			}
			if res.Entry != "" {
				job.Log = append(job.Log, res.Entry)
			}
		})
		if progress >= 0 {
			o.publishProgress(ctx, id, progress)
		}
	}
}

// pumpStderr classifies stderr lines; kept lines are appended as errors.
func (o *Orchestrator) pumpStderr(id string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferBytes)
	for scanner.Scan() {
		entries := InterpretStderr(scanner.Text())
		if len(entries) == 0 {
			continue
		}
		_ = o.registry.Mutate(id, func(job *model.Job) {
			job.Log = append(job.Log, entries...)
		})
	}
}

// complete applies the Running → Completed transition.
func (o *Orchestrator) complete(ctx context.Context, id string) {
	now := o.now()
	transitioned := false
	var snapshot *model.Job

	_ = o.registry.Mutate(id, func(job *model.Job) {
		if job.Status.Terminal() {
			return
		}
		job.Status = model.JobStatusCompleted
		job.Progress = progressComplete
		job.EndedAt = &now
		job.ResultFiles = CollectResults(o.resultsDir, job.ServiceKind, now)
		job.Log = append(job.Log, "🎉 Automation completed successfully!")
		transitioned = true
		snapshot = job.Clone()
	})
	// Release even when another path already made the job terminal, so a
	// handle tracked late never outlives the run.
	o.release(id)
	if !transitioned {
		return
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "job completed",
			"id", id,
			"results", len(snapshot.ResultFiles),
			"duration", now.Sub(snapshot.StartedAt),
		)
	}
	o.count("jobs.completed", map[string]string{"service": snapshot.ServiceKind})
	o.timing("jobs.duration", now.Sub(snapshot.StartedAt))
	o.publish(ctx, snapshot)
}

// fail applies the Running → Failed transition and issues the compensating
// refund. The transition guard guarantees at most one refund per job.
func (o *Orchestrator) fail(ctx context.Context, id string, cause error, advisory ...string) {
	now := o.now()
	transitioned := false
	var snapshot *model.Job

	_ = o.registry.Mutate(id, func(job *model.Job) {
		if job.Status.Terminal() {
			return
		}
		job.Status = model.JobStatusFailed
		job.EndedAt = &now
		job.Log = append(job.Log, fmt.Sprintf("❌ Job failed: %v", cause))
		job.Log = append(job.Log, advisory...)
		transitioned = true
		snapshot = job.Clone()
	})
	o.release(id)
	if !transitioned {
		return
	}

	if o.logger != nil {
		o.logger.ErrorContext(ctx, "job failed", "id", id, "error", cause)
	}
	o.count("jobs.failed", map[string]string{"service": snapshot.ServiceKind})

	if snapshot.CreditsUsed > 0 {
		o.refund(ctx, snapshot)
	}
	o.publish(ctx, snapshot)

	if o.notifier != nil {
		o.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:       snapshot.ID,
			ServiceKind: snapshot.ServiceKind,
			UserID:      snapshot.UserID,
			Error:       cause.Error(),
			Credits:     snapshot.CreditsUsed,
			OccurredAt:  now,
		})
	}
}

func (o *Orchestrator) refund(ctx context.Context, job *model.Job) {
	if err := o.ledger.Refund(ctx, job.UserID, job.CreditsUsed); err != nil {
		if o.logger != nil {
			o.logger.ErrorContext(ctx, "refund failed",
				"id", job.ID,
				"user_id", job.UserID,
				"credits", job.CreditsUsed,
				"error", err,
			)
		}
		return
	}
	o.appendLog(job.ID, fmt.Sprintf("💳 Refunded %d credits", job.CreditsUsed))
	o.count("jobs.refunds", map[string]string{"service": job.ServiceKind})
}

// launchAdvisory returns the remediation log lines for a launch failure.
func launchAdvisory(err error) []string {
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		return nil
	}
	switch launchErr.Kind {
	case LaunchErrorInterpreterMissing:
		return []string{
			"❌ Python interpreter not found",
			"💡 Install Python 3: sudo apt install -y python3",
		}
	case LaunchErrorScriptMissing:
		return []string{
			"❌ Automation script not found",
			"💡 Reinstall the service scripts or contact support",
		}
	}
	return nil
}

// exitAdvisory returns the remediation log lines for a non-zero exit. The
// sub-classification is advisory text only, not a behavioral branch.
func exitAdvisory(err error) []string {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return nil
	}
	if exitErr.Code == exitCodeInterpreterNotFound {
		return []string{"💡 Install Python 3: sudo apt install -y python3"}
	}
	return []string{"💡 A script dependency may be missing. Run: pip3 install -r requirements.txt"}
}

func (o *Orchestrator) appendLog(id string, lines ...string) {
	_ = o.registry.Mutate(id, func(job *model.Job) {
		job.Log = append(job.Log, lines...)
	})
}

// track stores the live process handle for a running job. The job can go
// terminal (user stop) between record creation and the launch returning; in
// that case the stop found nothing to signal, so track takes over the
// teardown instead of leaving a handle behind on a terminal job.
func (o *Orchestrator) track(id string, proc Process) {
	o.mu.Lock()
	if o.running == nil {
		o.running = make(map[string]*jobRuntime)
	}
	o.running[id] = &jobRuntime{proc: proc}
	o.mu.Unlock()

	snapshot, err := o.registry.Snapshot(id)
	if err != nil || !snapshot.Status.Terminal() {
		return
	}
	if p := o.release(id); p != nil {
		go func() { _ = p.Signal() }()
	}
}

// release drops the process handle on a terminal transition and returns it.
func (o *Orchestrator) release(id string) Process {
	o.mu.Lock()
	defer o.mu.Unlock()
	rt, ok := o.running[id]
	if !ok {
		return nil
	}
	delete(o.running, id)
	return rt.proc
}

func (o *Orchestrator) publishProgress(ctx context.Context, id string, progress int) {
	if o.events == nil {
		return
	}
	o.mu.Lock()
	rt, ok := o.running[id]
	if ok && progress-rt.lastPublished < progressPublishStep && progress < progressComplete {
		o.mu.Unlock()
		return
	}
	if ok {
		rt.lastPublished = progress
	}
	o.mu.Unlock()

	snapshot, err := o.registry.Snapshot(id)
	if err != nil {
		return
	}
	o.publish(ctx, snapshot)
}

func (o *Orchestrator) publish(ctx context.Context, job *model.Job) {
	if o.events == nil || job == nil {
		return
	}
	evt := core.StatusEvent{
		JobID:       job.ID,
		ServiceKind: job.ServiceKind,
		Status:      job.Status,
		Progress:    job.Progress,
		At:          o.now(),
	}
	if err := o.events.Publish(ctx, evt); err != nil && o.logger != nil {
		o.logger.WarnContext(ctx, "publish status event failed", "id", job.ID, "error", err)
	}
}

func (o *Orchestrator) count(name string, tags map[string]string) {
	if o.metrics != nil {
		o.metrics.Count(name, 1, tags)
	}
}

func (o *Orchestrator) timing(name string, d time.Duration) {
	if o.metrics != nil {
		o.metrics.Timing(name, d, nil)
	}
}
