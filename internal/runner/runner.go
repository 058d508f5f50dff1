// Package runner builds and runs generated test scripts with make, and
// optionally collects coverage with lcov and genhtml.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tildaslashalef/unitforge/internal/loggy"
)

var (
	// ErrTimeout is returned when the build or the tests exceed the deadline
	ErrTimeout = errors.New("test run timed out")

	// ErrNoMakefile is returned when the target directory has no Makefile
	ErrNoMakefile = errors.New("no Makefile in directory")
)

// DefaultTimeout bounds a run when neither Options nor Config set one
const DefaultTimeout = 300 * time.Second

// waitDelay bounds how long Wait blocks on output pipes after the process is killed
const waitDelay = 2 * time.Second

// Config holds tool locations and limits
type Config struct {
	MakePath       string
	LcovPath       string
	GenhtmlPath    string
	Timeout        time.Duration
	MaxOutputBytes int64
}

// Options tune one run
type Options struct {
	Timeout   time.Duration // Zero uses the runner default
	Coverage  bool          // Run lcov and genhtml after a passing make test
	ReportDir string        // HTML output directory; defaults to <dir>/coverage_report
}

// Result is the outcome of one run. A non-zero ExitCode is a result, not an error.
type Result struct {
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ExitCode       int           `json:"exit_code"`
	TimedOut       bool          `json:"timed_out"`
	Truncated      bool          `json:"truncated"`
	Duration       time.Duration `json:"duration"`
	CoverageReport string        `json:"coverage_report,omitempty"`
	CoverageError  string        `json:"coverage_error,omitempty"`
}

// Passed reports whether make test exited cleanly
func (r *Result) Passed() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// Runner executes the native toolchain
type Runner struct {
	cfg    Config
	logger *loggy.Logger
}

// New creates a Runner, filling tool names and limits that are unset
func New(cfg Config, logger *loggy.Logger) *Runner {
	if cfg.MakePath == "" {
		cfg.MakePath = "make"
	}
	if cfg.LcovPath == "" {
		cfg.LcovPath = "lcov"
	}
	if cfg.GenhtmlPath == "" {
		cfg.GenhtmlPath = "genhtml"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 1 << 20
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run executes make test inside dir. The process working directory is never changed;
// every command gets dir as its own working directory.
func (r *Runner) Run(ctx context.Context, dir string, opts Options) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("test directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test directory %s is not a directory", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "Makefile")); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMakefile, dir)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := r.execute(ctx, dir, r.cfg.MakePath, "test")
	if err != nil {
		result.Duration = time.Since(start)
		if errors.Is(err, ErrTimeout) {
			r.logger.Warn("Test run timed out", "dir", dir, "timeout", timeout)
		}
		return result, err
	}

	if opts.Coverage && result.ExitCode == 0 {
		report, covErr := r.coverage(ctx, dir, opts.ReportDir)
		if covErr != nil {
			if errors.Is(covErr, ErrTimeout) {
				result.TimedOut = true
				result.ExitCode = -1
				result.Duration = time.Since(start)
				return result, covErr
			}
			r.logger.Warn("Coverage collection failed", "dir", dir, "error", covErr)
			result.CoverageError = covErr.Error()
		} else {
			result.CoverageReport = report
		}
	}

	result.Duration = time.Since(start)
	r.logger.Info("Test run completed",
		"dir", dir,
		"exit_code", result.ExitCode,
		"duration", result.Duration,
		"coverage_report", result.CoverageReport)
	return result, nil
}

// coverage captures lcov data and renders it to reportDir
func (r *Runner) coverage(ctx context.Context, dir, reportDir string) (string, error) {
	if reportDir == "" {
		reportDir = filepath.Join(dir, "coverage_report")
	}

	res, err := r.execute(ctx, dir, r.cfg.LcovPath, "--capture", "--directory", ".", "--output-file", "coverage.info")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("lcov exited with %d: %s", res.ExitCode, lastLine(res.Stderr))
	}

	res, err = r.execute(ctx, dir, r.cfg.GenhtmlPath, "coverage.info", "--output-directory", reportDir)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("genhtml exited with %d: %s", res.ExitCode, lastLine(res.Stderr))
	}

	return reportDir, nil
}

// execute runs one command with capped output capture
func (r *Runner) execute(ctx context.Context, dir, command string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: r.cfg.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderr, limit: r.cfg.MaxOutputBytes}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	r.logger.Debug("Executing command", "command", command, "args", args, "dir", dir)

	err := cmd.Run()

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, ErrTimeout
	}
	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("running %s: %w", command, err)
	}

	return result, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// limitedWriter keeps the first limit bytes and discards the rest
type limitedWriter struct {
	w         io.Writer
	limit     int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.limit {
		lw.truncated = true
		return n, nil
	}

	remaining := lw.limit - lw.written
	if int64(len(p)) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return n, err
}
