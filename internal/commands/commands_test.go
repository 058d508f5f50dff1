package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/unitforge/internal/export"
	"github.com/tildaslashalef/unitforge/internal/generation"
)

type fakeExporter struct {
	body string
	err  error
}

func (f fakeExporter) Export(_ context.Context, _ string, _ export.Format, w io.Writer) error {
	if _, err := io.WriteString(w, f.body); err != nil {
		return err
	}
	return f.err
}

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("writes the file", func(t *testing.T) {
		out := filepath.Join(dir, "cases.csv")
		err := exportToFile(context.Background(), fakeExporter{body: "id,function_name\n"}, "gen-x", export.FormatCSV, out)
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "id,function_name\n", string(data))
	})

	t.Run("failure leaves nothing behind", func(t *testing.T) {
		out := filepath.Join(dir, "broken.csv")
		err := exportToFile(context.Background(), fakeExporter{body: "partial", err: generation.ErrNotFound}, "gen-x", export.FormatCSV, out)
		assert.True(t, errors.Is(err, generation.ErrNotFound))

		_, statErr := os.Stat(out)
		assert.True(t, os.IsNotExist(statErr))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".unitforge-export-")
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		err := exportToFile(context.Background(), fakeExporter{}, "gen-x", export.FormatCSV, filepath.Join(dir, "nope", "x.csv"))
		assert.Error(t, err)
	})
}

func TestRunStatus(t *testing.T) {
	cases := []struct {
		run  generation.TestRun
		want string
	}{
		{generation.TestRun{Passed: true}, "passed"},
		{generation.TestRun{ExitCode: 2}, "failed"},
		{generation.TestRun{TimedOut: true, ExitCode: -1}, "timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, runStatus(&tc.run), fmt.Sprintf("%+v", tc.run))
		})
	}
}

func TestCommandsAreWired(t *testing.T) {
	names := map[string]bool{}
	for _, c := range []interface{ Names() []string }{
		ServeCommand(), GenerateCommand(), HistoryCommand(), ShowCommand(),
		ExportCommand(), RunCommand(), InitCommand(), MigrateCommand(),
	} {
		for _, n := range c.Names() {
			assert.False(t, names[n], "duplicate command name %s", n)
			names[n] = true
		}
	}
	assert.True(t, names["gen"])
	assert.True(t, names["ls"])

	sub := map[string]bool{}
	for _, c := range MigrateCommand().Subcommands {
		sub[c.Name] = true
	}
	assert.Equal(t, map[string]bool{"up": true, "down": true, "version": true}, sub)
}
