package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/unitforge/internal/app"
	"github.com/tildaslashalef/unitforge/internal/export"
	"github.com/tildaslashalef/unitforge/internal/generation"
	"github.com/tildaslashalef/unitforge/internal/runner"
	"github.com/tildaslashalef/unitforge/internal/utils"
)

var idFlag = &cli.StringFlag{
	Name:     "id",
	Usage:    "Generation id (gen-...)",
	Required: true,
}

// HistoryCommand lists past generations, newest first
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"ls"},
		Usage:   "List past generations",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: generation.DefaultListLimit, Usage: "Maximum rows"},
			&cli.IntFlag{Name: "offset", Usage: "Rows to skip"},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			gens, err := application.Generations.List(c.Context, c.Int("limit"), c.Int("offset"))
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to list generations: %s", err))
				return err
			}
			if len(gens) == 0 {
				utils.PrintInfo("No generations yet. Create one with " + color.CyanString("unitforge generate -f file.c"))
				return nil
			}

			rows := make([][]string, len(gens))
			for i, g := range gens {
				rows[i] = []string{
					g.ID,
					string(g.Status),
					g.Model,
					fmt.Sprintf("%d", g.TotalTests),
					fmt.Sprintf("%v", g.FileNames()),
					g.CreatedAt.Local().Format("2006-01-02 15:04"),
				}
			}
			utils.PrintTable("Generations", []string{"ID", "Status", "Model", "Tests", "Files", "Created"}, rows)
			return nil
		},
	}
}

// ShowCommand prints one generation with its test cases and runs
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a generation",
		Flags: []cli.Flag{
			idFlag,
			&cli.BoolFlag{Name: "code", Usage: "Print the generated test code and Makefile"},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			gen, err := application.Generations.Get(c.Context, c.String("id"))
			if err != nil {
				utils.PrintError(err.Error())
				return err
			}

			printGeneration(gen)
			printTestCases(gen.Result.TestCases)

			if c.Bool("code") {
				if script := gen.Result.TestScript(); script != "" {
					utils.PrintHeading("Test script")
					fmt.Println(utils.CodeBlock(script))
				}
				if gen.Result.MakefileContent != "" {
					utils.PrintHeading("Makefile")
					fmt.Println(utils.CodeBlock(gen.Result.MakefileContent))
				}
			}

			runs, err := application.Generations.Runs(c.Context, gen.ID)
			if err != nil {
				utils.PrintWarning(fmt.Sprintf("Could not load test runs: %s", err))
				return nil
			}
			if len(runs) > 0 {
				rows := make([][]string, len(runs))
				for i, r := range runs {
					rows[i] = []string{r.ID, runStatus(r), fmt.Sprintf("%d", r.ExitCode), utils.FormatDuration(r.Duration), r.CreatedAt.Local().Format("2006-01-02 15:04")}
				}
				utils.PrintTable("Test Runs", []string{"ID", "Result", "Exit", "Duration", "Created"}, rows)
			}
			return nil
		},
	}
}

// ExportCommand writes a generation's test cases as CSV or XLSX
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export test cases as csv or xlsx",
		Flags: []cli.Flag{
			idFlag,
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(export.FormatCSV), Usage: "csv or xlsx"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Destination (default: test_cases.<format>, - for stdout)"},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			format, err := export.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}
			out := c.String("out")
			if out == "" {
				out = format.Filename()
			}

			if out == "-" {
				return application.Generations.Export(c.Context, c.String("id"), format, os.Stdout)
			}
			if err := exportToFile(c.Context, application.Generations, c.String("id"), format, out); err != nil {
				utils.PrintError(err.Error())
				return err
			}
			utils.PrintSuccess("Exported to " + color.YellowString("%s", absPath(out)))
			return nil
		},
	}
}

type exporter interface {
	Export(ctx context.Context, id string, format export.Format, w io.Writer) error
}

// exportToFile writes to a temporary file first so a failed export leaves no partial output
func exportToFile(ctx context.Context, svc exporter, id string, format export.Format, out string) error {
	tmp, err := os.CreateTemp(filepath.Dir(out), ".unitforge-export-*")
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := svc.Export(ctx, id, format, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}
	return nil
}

// RunCommand builds and runs a generation's tests with make
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Build and run the generated tests",
		Description: "Runs make test in the generation's test_scripts directory and, when it passes, " +
			"collects coverage with lcov and genhtml.",
		Flags: []cli.Flag{
			idFlag,
			&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "Deadline for build and tests (default: UNITFORGE_RUNNER_TIMEOUT)"},
			&cli.BoolFlag{Name: "coverage", Value: true, Usage: "Collect an lcov coverage report after a passing run"},
			&cli.BoolFlag{Name: "output", Usage: "Print captured stdout and stderr"},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := generation.RunOptions{
				Timeout:  c.Duration("timeout"),
				Coverage: c.Bool("coverage") && application.Config.Runner.Coverage,
			}

			utils.PrintHeading("Running tests for " + c.String("id"))
			start := time.Now()
			run, err := application.Generations.Run(ctx, c.String("id"), opts)
			if run == nil {
				utils.PrintError(err.Error())
				return err
			}

			utils.PrintDivider()
			utils.PrintKeyValue("Run", run.ID)
			status := utils.Theme.Success
			if !run.Passed {
				status = utils.Theme.Error
			}
			utils.PrintKeyValueWithColor("Result", runStatus(run), status)
			utils.PrintKeyValue("Exit code", fmt.Sprintf("%d", run.ExitCode))
			utils.PrintKeyValue("Duration", utils.FormatDuration(time.Since(start)))
			if run.CoverageReport != "" {
				if dir, derr := application.Artifacts.Dir(run.GenerationID); derr == nil {
					utils.PrintKeyValue("Coverage", filepath.Join(dir, filepath.FromSlash(run.CoverageReport), "index.html"))
				}
			}
			if run.CoverageError != "" {
				utils.PrintKeyValueWithColor("Coverage error", run.CoverageError, utils.Theme.Warning)
			}
			if run.Truncated {
				utils.PrintWarning("Output was truncated")
			}
			utils.PrintDivider()

			if c.Bool("output") || !run.Passed {
				if run.Stdout != "" {
					utils.PrintHeading("stdout")
					fmt.Println(run.Stdout)
				}
				if run.Stderr != "" {
					utils.PrintHeading("stderr")
					fmt.Println(run.Stderr)
				}
			}

			switch {
			case errors.Is(err, runner.ErrTimeout):
				return cli.Exit("tests timed out", 2)
			case err != nil:
				return err
			case !run.Passed:
				return cli.Exit("tests failed", 1)
			}
			utils.PrintSuccess("All tests passed")
			return nil
		},
	}
}

func runStatus(r *generation.TestRun) string {
	switch {
	case r.TimedOut:
		return "timeout"
	case r.Passed:
		return "passed"
	default:
		return "failed"
	}
}
