package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/tildaslashalef/unitforge/internal/artifacts"
	"github.com/tildaslashalef/unitforge/internal/export"
	"github.com/tildaslashalef/unitforge/internal/extractor"
	"github.com/tildaslashalef/unitforge/internal/llm"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/metrics"
	"github.com/tildaslashalef/unitforge/internal/parser"
	"github.com/tildaslashalef/unitforge/internal/prompt"
	"github.com/tildaslashalef/unitforge/internal/runner"
	"github.com/tildaslashalef/unitforge/internal/ulid"
)

// Listing bounds
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// DefaultTimeout bounds one model call when Config.Timeout is unset
const DefaultTimeout = 5 * time.Minute

// TestRunner executes a generation's Makefile
type TestRunner interface {
	Run(ctx context.Context, dir string, opts runner.Options) (*runner.Result, error)
}

// Config tunes model calls
type Config struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// RunOptions tune one test run
type RunOptions struct {
	Timeout  time.Duration
	Coverage bool
}

// Service generates, stores and runs unit tests
type Service struct {
	repo      Repository
	client    llm.Client
	extractor *extractor.Extractor
	store     *artifacts.Store
	runner    TestRunner
	metrics   *metrics.Metrics
	config    Config
	logger    *loggy.Logger
}

// NewService creates a generation service. runner and m may be nil.
func NewService(
	repo Repository,
	client llm.Client,
	store *artifacts.Store,
	testRunner TestRunner,
	m *metrics.Metrics,
	cfg Config,
	logger *loggy.Logger,
) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Service{
		repo:      repo,
		client:    client,
		extractor: extractor.NewExtractor(logger),
		store:     store,
		runner:    testRunner,
		metrics:   m,
		config:    cfg,
		logger:    logger,
	}
}

// Generate sends the files to the model, parses the reply and writes the artifacts.
// model overrides the configured model when non-empty. Artifacts are written only
// after the whole reply has been parsed.
func (s *Service) Generate(ctx context.Context, files []parser.SourceFile, model string) (*Generation, error) {
	sources, headers := parser.Split(files)
	if len(sources) == 0 {
		return nil, prompt.ErrNoSourceFiles
	}

	messages, err := prompt.NewBuilder(targetLanguage(files)).Build(sources, headers)
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	if model == "" {
		model = s.config.Model
	}

	gen := &Generation{
		ID:    ulid.GenerationID(),
		Model: model,
		Files: files,
	}
	logger := s.loggerFor(ctx).With("generation_id", gen.ID)
	logger.Info("Generating unit tests", "sources", len(sources), "headers", len(headers), "model", model)

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.GenerateChat(callCtx, llm.ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	})
	gen.Duration = time.Since(start)

	if err != nil {
		s.metrics.ObserveLLM("", gen.Duration, 0, 0, err)
		s.fail(ctx, gen, err)
		logger.Error("Model call failed", "error", err, "duration", gen.Duration)
		return nil, fmt.Errorf("generating tests: %w", err)
	}

	gen.Provider = string(resp.Provider)
	if resp.Model != "" {
		gen.Model = resp.Model
	}
	gen.RawResponse = resp.Content
	gen.InputTokens = resp.InputTokens
	gen.OutputTokens = resp.OutputTokens
	s.metrics.ObserveLLM(gen.Provider, gen.Duration, resp.InputTokens, resp.OutputTokens, nil)

	gen.Result, gen.Strategy = s.extractor.ExtractWithStrategy(resp.Content)
	gen.TotalTests = gen.Result.Summary.TotalTests
	s.metrics.ObserveExtraction(string(gen.Strategy))

	if err := s.writeArtifacts(ctx, gen); err != nil {
		s.discardArtifacts(gen.ID)
		s.fail(ctx, gen, err)
		return nil, err
	}

	gen.Status = StatusCompleted
	if err := s.repo.CreateGeneration(ctx, gen); err != nil {
		s.discardArtifacts(gen.ID)
		s.metrics.ObserveGeneration(metrics.OutcomeError, 0)
		return nil, fmt.Errorf("saving generation: %w", err)
	}

	outcome := metrics.OutcomeSuccess
	if gen.TotalTests == 0 {
		outcome = metrics.OutcomeEmpty
		logger.Warn("Model reply yielded no test cases", "strategy", gen.Strategy, "finish_reason", resp.FinishReason)
	}
	s.metrics.ObserveGeneration(outcome, gen.TotalTests)

	logger.Info("Generation completed",
		"test_cases", gen.TotalTests,
		"strategy", gen.Strategy,
		"provider", gen.Provider,
		"duration", gen.Duration)
	return gen, nil
}

func (s *Service) writeArtifacts(ctx context.Context, gen *Generation) error {
	if s.store == nil {
		return nil
	}
	if _, err := s.store.WriteScripts(ctx, gen.ID, gen.Result); err != nil {
		return fmt.Errorf("writing test scripts: %w", err)
	}
	if _, err := s.store.WriteResults(ctx, gen.ID, gen.Result.TestCases); err != nil {
		return fmt.Errorf("writing test results: %w", err)
	}
	return nil
}

// discardArtifacts removes whatever was written for a generation that did not complete
func (s *Service) discardArtifacts(id string) {
	if s.store == nil {
		return
	}
	if err := s.store.Remove(id); err != nil {
		s.logger.Warn("Failed to remove artifacts of failed generation", "generation_id", id, "error", err)
	}
}

// fail records a failed generation. Persistence errors are logged only.
func (s *Service) fail(ctx context.Context, gen *Generation, cause error) {
	s.metrics.ObserveGeneration(metrics.OutcomeError, 0)
	gen.Status = StatusFailed
	gen.Error = cause.Error()
	// Recorded even when ctx is already done
	if err := s.repo.CreateGeneration(context.WithoutCancel(ctx), gen); err != nil {
		s.logger.Warn("Failed to record failed generation", "generation_id", gen.ID, "error", err)
	}
}

// loggerFor prefers the request scoped logger carried by ctx
func (s *Service) loggerFor(ctx context.Context) *loggy.Logger {
	if l := loggy.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// targetLanguage picks C++ when any uploaded file is C++
func targetLanguage(files []parser.SourceFile) string {
	for _, f := range files {
		if f.Language == parser.LanguageCPP {
			return parser.LanguageCPP
		}
	}
	return parser.LanguageC
}

// Get returns one generation with its result
func (s *Service) Get(ctx context.Context, id string) (*Generation, error) {
	if !ulid.ValidateWithPrefix(id, ulid.PrefixGeneration) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return s.repo.GetGeneration(ctx, id)
}

// List returns the most recent generations. limit is clamped to [1, MaxListLimit].
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Generation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListGenerations(ctx, limit, offset)
}

// Export renders the test cases of a generation in the requested format
func (s *Service) Export(ctx context.Context, id string, format export.Format, w io.Writer) error {
	gen, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return export.Write(w, format, gen.Result.TestCases)
}

// WriteScripts (re)writes the script files of a generation and returns them
func (s *Service) WriteScripts(ctx context.Context, id string) ([]artifacts.File, error) {
	gen, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, errors.New("artifact store is not configured")
	}
	return s.store.WriteScripts(ctx, gen.ID, gen.Result)
}

// Files lists the stored artifacts of a generation
func (s *Service) Files(ctx context.Context, id string) ([]artifacts.File, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.store == nil {
		return []artifacts.File{}, nil
	}
	return s.store.List(id)
}

// OpenFile opens one stored artifact. rel is slash separated and relative to the generation directory.
func (s *Service) OpenFile(ctx context.Context, id, rel string) (*os.File, fs.FileInfo, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}
	if s.store == nil {
		return nil, nil, artifacts.ErrNotFound
	}
	return s.store.Open(id, rel)
}

// Run executes make test for a generation, writing its scripts first if they are missing.
// A timed out run is stored and returned together with runner.ErrTimeout.
func (s *Service) Run(ctx context.Context, id string, opts RunOptions) (*TestRun, error) {
	if s.runner == nil || s.store == nil {
		return nil, errors.New("test runner is not configured")
	}
	gen, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	dir, err := s.store.ScriptsPath(id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, artifacts.MakefileName)); errors.Is(err, fs.ErrNotExist) {
		if _, err := s.store.WriteScripts(ctx, id, gen.Result); err != nil {
			return nil, fmt.Errorf("writing test scripts: %w", err)
		}
	}
	reportDir, err := s.store.ReportPath(id)
	if err != nil {
		return nil, err
	}

	result, runErr := s.runner.Run(ctx, dir, runner.Options{
		Timeout:   opts.Timeout,
		Coverage:  opts.Coverage,
		ReportDir: reportDir,
	})
	if result == nil {
		s.metrics.ObserveRun(metrics.RunError, 0)
		return nil, fmt.Errorf("running tests: %w", runErr)
	}

	run := &TestRun{
		GenerationID:  id,
		ExitCode:      result.ExitCode,
		Passed:        result.Passed(),
		TimedOut:      result.TimedOut,
		Truncated:     result.Truncated,
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		CoverageError: result.CoverageError,
		Duration:      result.Duration,
	}
	if result.CoverageReport != "" {
		run.CoverageReport = path.Join(artifacts.ResultsDir, artifacts.ReportDir)
	}

	if err := s.repo.CreateTestRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("Failed to record test run", "generation_id", id, "error", err)
	}
	if run.CoverageReport != "" {
		if err := s.store.MirrorTree(ctx, id, run.CoverageReport); err != nil {
			s.logger.Warn("Failed to mirror coverage report", "generation_id", id, "error", err)
		}
	}

	s.metrics.ObserveRun(runOutcome(run, runErr), run.Duration)

	if runErr != nil {
		return run, fmt.Errorf("running tests: %w", runErr)
	}
	return run, nil
}

// Runs lists the stored runs of a generation
func (s *Service) Runs(ctx context.Context, id string) ([]*TestRun, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTestRuns(ctx, id)
}

func runOutcome(run *TestRun, err error) string {
	switch {
	case run.TimedOut:
		return metrics.RunTimeout
	case err != nil:
		return metrics.RunError
	case run.Passed:
		return metrics.RunPassed
	default:
		return metrics.RunFailed
	}
}
