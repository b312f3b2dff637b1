package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// LaunchErrorKind distinguishes why a script could not be started, so the
// lifecycle controller can log targeted remediation instead of a generic
// failure.
type LaunchErrorKind string

const (
	// LaunchErrorInterpreterMissing means the Python interpreter binary was
	// not found on the host.
	LaunchErrorInterpreterMissing LaunchErrorKind = "interpreter_missing"
	// LaunchErrorScriptMissing means the service's automation script is
	// absent from the scripts directory.
	LaunchErrorScriptMissing LaunchErrorKind = "script_missing"
)

// LaunchError reports a failure to start an automation script.
type LaunchError struct {
	Kind LaunchErrorKind
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitError reports a script that started but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("script exited with code %d", e.Code)
}

// exitCodeInterpreterNotFound is the shell convention for "command not found";
// a script can surface it when its shebang target is missing.
const exitCodeInterpreterNotFound = 127

// Process is the live handle of a launched automation task. Stdout and stderr
// are independent line streams, internally ordered but unordered relative to
// each other; Wait delivers the exit signal exactly once.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the task exits. A non-zero exit surfaces as *ExitError.
	Wait() error
	// Signal requests graceful termination. Best-effort; callers do not wait
	// for the task to actually die.
	Signal() error
}

// Launcher starts automation tasks.
type Launcher interface {
	Launch(ctx context.Context, script, inputPath string, extraEnv []string) (Process, error)
}

// ScriptLauncher launches Python automation scripts from the configured
// scripts directory. Scripts always run headless and with the scripts
// directory as working directory, so their relative results/ and logs/ paths
// land where the collector expects them.
type ScriptLauncher struct {
	// PythonBin is the interpreter to invoke, e.g. "python3".
	PythonBin string
	// ScriptsDir holds the automation scripts named by the service catalog.
	ScriptsDir string
}

// Launch starts the given script bound to a resolved input path.
//
//nolint:ireturn // Process is the orchestrator's seam for faking task execution.
func (l *ScriptLauncher) Launch(
	ctx context.Context,
	script, inputPath string,
	extraEnv []string,
) (Process, error) {
	interpreter, err := exec.LookPath(l.PythonBin)
	if err != nil {
		return nil, &LaunchError{Kind: LaunchErrorInterpreterMissing, Path: l.PythonBin, Err: err}
	}

	scriptPath := filepath.Join(l.ScriptsDir, script)
	if _, err = os.Stat(scriptPath); err != nil {
		return nil, &LaunchError{Kind: LaunchErrorScriptMissing, Path: scriptPath, Err: err}
	}

	//nolint:gosec // script and input paths come from the static catalog and the resolver.
	cmd := exec.Command(interpreter, scriptPath, inputPath, "--headless")
	cmd.Dir = l.ScriptsDir
	cmd.Env = append(os.Environ(), extraEnv...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bind stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("bind stderr: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, &LaunchError{Kind: LaunchErrorScriptMissing, Path: scriptPath, Err: err}
	}

	_ = ctx // launch is synchronous; supervision owns the process lifetime

	return &osProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type osProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *osProcess) Stdout() io.Reader { return p.stdout }
func (p *osProcess) Stderr() io.Reader { return p.stderr }

func (p *osProcess) Wait() error {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

func (p *osProcess) Signal() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
