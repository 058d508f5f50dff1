package generation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/unitforge/internal/extractor"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/ulid"
)

// Repository defines persistence operations for generations and their runs
type Repository interface {
	// CreateGeneration stores a finished or failed generation
	CreateGeneration(ctx context.Context, gen *Generation) error

	// GetGeneration retrieves a generation with its raw response and result
	GetGeneration(ctx context.Context, id string) (*Generation, error)

	// ListGenerations returns generations newest first without raw responses
	ListGenerations(ctx context.Context, limit, offset int) ([]*Generation, error)

	// CreateTestRun stores one toolchain run
	CreateTestRun(ctx context.Context, run *TestRun) error

	// ListTestRuns returns the runs of a generation newest first
	ListTestRuns(ctx context.Context, generationID string) ([]*TestRun, error)
}

// SQLRepository implements Repository on SQLite
type SQLRepository struct {
	db           *sql.DB
	logger       *loggy.Logger
	builder      sq.StatementBuilderType
	queryTimeout time.Duration
}

// NewSQLRepository creates a new generation SQL repository. Each statement is
// bounded by queryTimeout; zero leaves the caller's context as the only limit.
func NewSQLRepository(db *sql.DB, logger *loggy.Logger, queryTimeout time.Duration) *SQLRepository {
	return &SQLRepository{
		db:           db,
		logger:       logger,
		builder:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
		queryTimeout: queryTimeout,
	}
}

func (r *SQLRepository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

var generationColumns = []string{
	"id", "status", "provider", "model", "strategy", "files", "raw_response", "result",
	"total_tests", "input_tokens", "output_tokens", "duration_ms", "error", "created_at", "updated_at",
}

var summaryColumns = []string{
	"id", "status", "provider", "model", "strategy", "files",
	"total_tests", "input_tokens", "output_tokens", "duration_ms", "error", "created_at", "updated_at",
}

var testRunColumns = []string{
	"id", "generation_id", "exit_code", "timed_out", "truncated", "stdout", "stderr",
	"coverage_report", "coverage_error", "duration_ms", "created_at",
}

// CreateGeneration stores a generation, assigning an id and timestamps when unset
func (r *SQLRepository) CreateGeneration(ctx context.Context, gen *Generation) error {
	if gen.ID == "" {
		gen.ID = ulid.GenerationID()
	}
	now := time.Now().UTC()
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = now
	}
	if gen.UpdatedAt.IsZero() {
		gen.UpdatedAt = gen.CreatedAt
	}

	filesJSON, err := json.Marshal(gen.Files)
	if err != nil {
		return fmt.Errorf("marshaling generation files: %w", err)
	}
	resultJSON, err := json.Marshal(gen.Result)
	if err != nil {
		return fmt.Errorf("marshaling generation result: %w", err)
	}

	query, args, err := r.builder.
		Insert("generations").
		Columns(generationColumns...).
		Values(
			gen.ID,
			string(gen.Status),
			gen.Provider,
			gen.Model,
			string(gen.Strategy),
			string(filesJSON),
			gen.RawResponse,
			string(resultJSON),
			gen.TotalTests,
			gen.InputTokens,
			gen.OutputTokens,
			gen.Duration.Milliseconds(),
			gen.Error,
			gen.CreatedAt,
			gen.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building create generation query: %w", err)
	}

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing create generation query: %w", err)
	}

	r.logger.Debug("Stored generation", "generation_id", gen.ID, "status", gen.Status)
	return nil
}

// GetGeneration retrieves a generation by id
func (r *SQLRepository) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	query, args, err := r.builder.
		Select(generationColumns...).
		From("generations").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get generation query: %w", err)
	}

	var (
		gen                   Generation
		filesJSON, resultJSON []byte
		durationMS            int64
		status, strategy      string
	)
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&gen.ID,
		&status,
		&gen.Provider,
		&gen.Model,
		&strategy,
		&filesJSON,
		&gen.RawResponse,
		&resultJSON,
		&gen.TotalTests,
		&gen.InputTokens,
		&gen.OutputTokens,
		&durationMS,
		&gen.Error,
		&gen.CreatedAt,
		&gen.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("executing get generation query: %w", err)
	}

	gen.Status = Status(status)
	gen.Strategy = extractor.Strategy(strategy)
	gen.Duration = time.Duration(durationMS) * time.Millisecond

	if len(filesJSON) > 0 {
		if err := json.Unmarshal(filesJSON, &gen.Files); err != nil {
			return nil, fmt.Errorf("unmarshaling generation files: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &gen.Result); err != nil {
			return nil, fmt.Errorf("unmarshaling generation result: %w", err)
		}
	}

	return &gen, nil
}

// ListGenerations returns a page of generations, newest first
func (r *SQLRepository) ListGenerations(ctx context.Context, limit, offset int) ([]*Generation, error) {
	query, args, err := r.builder.
		Select(summaryColumns...).
		From("generations").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list generations query: %w", err)
	}

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list generations query: %w", err)
	}
	defer rows.Close()

	generations := []*Generation{}
	for rows.Next() {
		var (
			gen              Generation
			filesJSON        []byte
			durationMS       int64
			status, strategy string
		)
		if err := rows.Scan(
			&gen.ID,
			&status,
			&gen.Provider,
			&gen.Model,
			&strategy,
			&filesJSON,
			&gen.TotalTests,
			&gen.InputTokens,
			&gen.OutputTokens,
			&durationMS,
			&gen.Error,
			&gen.CreatedAt,
			&gen.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning generation row: %w", err)
		}

		gen.Status = Status(status)
		gen.Strategy = extractor.Strategy(strategy)
		gen.Duration = time.Duration(durationMS) * time.Millisecond
		if len(filesJSON) > 0 {
			if err := json.Unmarshal(filesJSON, &gen.Files); err != nil {
				return nil, fmt.Errorf("unmarshaling generation files: %w", err)
			}
		}
		// Listings carry names and sizes only
		for i := range gen.Files {
			gen.Files[i].Content = ""
		}
		generations = append(generations, &gen)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating generation rows: %w", err)
	}

	return generations, nil
}

// CreateTestRun stores a run, assigning an id and timestamp when unset
func (r *SQLRepository) CreateTestRun(ctx context.Context, run *TestRun) error {
	if run.ID == "" {
		run.ID = ulid.RunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.builder.
		Insert("test_runs").
		Columns(testRunColumns...).
		Values(
			run.ID,
			run.GenerationID,
			run.ExitCode,
			run.TimedOut,
			run.Truncated,
			run.Stdout,
			run.Stderr,
			run.CoverageReport,
			run.CoverageError,
			run.Duration.Milliseconds(),
			run.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building create test run query: %w", err)
	}

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing create test run query: %w", err)
	}
	return nil
}

// ListTestRuns returns every run of a generation, newest first
func (r *SQLRepository) ListTestRuns(ctx context.Context, generationID string) ([]*TestRun, error) {
	query, args, err := r.builder.
		Select(testRunColumns...).
		From("test_runs").
		Where(sq.Eq{"generation_id": generationID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list test runs query: %w", err)
	}

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list test runs query: %w", err)
	}
	defer rows.Close()

	runs := []*TestRun{}
	for rows.Next() {
		var (
			run        TestRun
			durationMS int64
		)
		if err := rows.Scan(
			&run.ID,
			&run.GenerationID,
			&run.ExitCode,
			&run.TimedOut,
			&run.Truncated,
			&run.Stdout,
			&run.Stderr,
			&run.CoverageReport,
			&run.CoverageError,
			&durationMS,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning test run row: %w", err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		run.Passed = !run.TimedOut && run.ExitCode == 0
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating test run rows: %w", err)
	}

	return runs, nil
}
