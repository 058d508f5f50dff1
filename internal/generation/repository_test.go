package generation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/unitforge/internal/extractor"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/parser"
	"github.com/tildaslashalef/unitforge/internal/ulid"
)

func newMockRepository(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create mock database")
	t.Cleanup(func() { db.Close() })
	return NewSQLRepository(db, loggy.NewNoopLogger(), time.Second), mock
}

func sampleGeneration() *Generation {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Generation{
		ID:       ulid.GenerationID(),
		Status:   StatusCompleted,
		Provider: "gemini",
		Model:    "gemini-2.5-pro",
		Strategy: extractor.StrategyJSON,
		Files: []parser.SourceFile{
			{Name: "math.c", Content: "int add(int a, int b) { return a + b; }", Size: 39, Kind: parser.KindSource, Language: parser.LanguageC},
		},
		RawResponse: "reply",
		Result: extractor.ExtractionResult{
			TestCases:       []extractor.TestCase{{ID: "TC_001", FunctionName: "test_add", Type: extractor.TypePositive}},
			MakefileContent: "test:\n",
		},
		TotalTests:   1,
		InputTokens:  120,
		OutputTokens: 80,
		Duration:     1500 * time.Millisecond,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestCreateGeneration(t *testing.T) {
	repo, mock := newMockRepository(t)
	gen := sampleGeneration()

	filesJSON, _ := json.Marshal(gen.Files)
	resultJSON, _ := json.Marshal(gen.Result)

	mock.ExpectExec("INSERT INTO generations").
		WithArgs(
			gen.ID, "completed", "gemini", "gemini-2.5-pro", "json",
			string(filesJSON), "reply", string(resultJSON),
			1, 120, 80, int64(1500), "", gen.CreatedAt, gen.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateGeneration(context.Background(), gen))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGenerationAssignsID(t *testing.T) {
	repo, mock := newMockRepository(t)
	gen := &Generation{Status: StatusFailed, Error: "upstream"}

	mock.ExpectExec("INSERT INTO generations").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateGeneration(context.Background(), gen))
	assert.True(t, ulid.ValidateWithPrefix(gen.ID, ulid.PrefixGeneration))
	assert.False(t, gen.CreatedAt.IsZero())
	assert.Equal(t, gen.CreatedAt, gen.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGenerationExecError(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec("INSERT INTO generations").WillReturnError(errors.New("disk full"))

	err := repo.CreateGeneration(context.Background(), sampleGeneration())
	assert.ErrorContains(t, err, "disk full")
}

func TestGetGeneration(t *testing.T) {
	repo, mock := newMockRepository(t)
	want := sampleGeneration()
	filesJSON, _ := json.Marshal(want.Files)
	resultJSON, _ := json.Marshal(want.Result)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(generationColumns).AddRow(
			want.ID, "completed", "gemini", "gemini-2.5-pro", "json",
			filesJSON, "reply", resultJSON,
			1, 120, 80, int64(1500), "", want.CreatedAt, want.UpdatedAt,
		)
		mock.ExpectQuery(`SELECT (.+) FROM generations WHERE id = \?`).
			WithArgs(want.ID).
			WillReturnRows(rows)

		got, err := repo.GetGeneration(context.Background(), want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM generations WHERE id = \?`).
			WithArgs("gen-missing").
			WillReturnRows(sqlmock.NewRows(generationColumns))

		_, err := repo.GetGeneration(context.Background(), "gen-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListGenerations(t *testing.T) {
	repo, mock := newMockRepository(t)
	gen := sampleGeneration()
	filesJSON, _ := json.Marshal(gen.Files)

	rows := sqlmock.NewRows(summaryColumns).
		AddRow(gen.ID, "completed", "gemini", "gemini-2.5-pro", "json", filesJSON, 1, 120, 80, int64(1500), "", gen.CreatedAt, gen.UpdatedAt).
		AddRow(ulid.GenerationID(), "failed", "vertex", "", "none", []byte("[]"), 0, 0, 0, int64(20), "boom", gen.CreatedAt, gen.UpdatedAt)

	mock.ExpectQuery(`SELECT (.+) FROM generations ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0`).
		WillReturnRows(rows)

	list, err := repo.ListGenerations(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, gen.ID, list[0].ID)
	assert.Equal(t, []string{"math.c"}, list[0].FileNames())
	assert.Empty(t, list[0].Files[0].Content, "listings drop file contents")
	assert.Empty(t, list[0].RawResponse)
	assert.Equal(t, StatusFailed, list[1].Status)
	assert.Equal(t, "boom", list[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTestRuns(t *testing.T) {
	repo, mock := newMockRepository(t)
	genID := ulid.GenerationID()
	created := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)

	run := &TestRun{
		GenerationID:   genID,
		ExitCode:       0,
		Stdout:         "1 Tests 0 Failures 0 Ignored",
		CoverageReport: "test_results/coverage_report",
		Duration:       3 * time.Second,
		CreatedAt:      created,
	}

	mock.ExpectExec("INSERT INTO test_runs").
		WithArgs(sqlmock.AnyArg(), genID, 0, false, false, run.Stdout, "", run.CoverageReport, "", int64(3000), created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateTestRun(context.Background(), run))
	assert.True(t, ulid.ValidateWithPrefix(run.ID, ulid.PrefixRun))

	rows := sqlmock.NewRows(testRunColumns).
		AddRow(run.ID, genID, 0, false, false, run.Stdout, "", run.CoverageReport, "", int64(3000), created).
		AddRow(ulid.RunID(), genID, -1, true, false, "", "", "", "", int64(300000), created.Add(-time.Hour))

	mock.ExpectQuery(`SELECT (.+) FROM test_runs WHERE generation_id = \? ORDER BY created_at DESC`).
		WithArgs(genID).
		WillReturnRows(rows)

	runs, err := repo.ListTestRuns(context.Background(), genID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].Passed)
	assert.Equal(t, 3*time.Second, runs[0].Duration)
	assert.False(t, runs[1].Passed)
	assert.True(t, runs[1].TimedOut)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := NewSQLRepository(db, loggy.NewNoopLogger(), 20*time.Millisecond)

	mock.ExpectQuery("SELECT (.+) FROM generations").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows(generationColumns))

	start := time.Now()
	_, err = repo.GetGeneration(context.Background(), "gen-slow")

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "executing get generation query")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
