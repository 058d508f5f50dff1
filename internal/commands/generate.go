package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/unitforge/internal/app"
	"github.com/tildaslashalef/unitforge/internal/export"
	"github.com/tildaslashalef/unitforge/internal/extractor"
	"github.com/tildaslashalef/unitforge/internal/generation"
	"github.com/tildaslashalef/unitforge/internal/utils"
)

// GenerateCommand returns the CLI command that generates unit tests for local files
func GenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"gen"},
		Usage:     "Generate unit tests for C/C++ files",
		ArgsUsage: "[file...]",
		Description: "Reads the given source and header files, asks the configured model for unit tests " +
			"and writes the test scripts, Makefile and per-case results under the artifacts directory.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Source or header file (repeatable); positional arguments are accepted too",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model override for this generation",
			},
			&cli.StringFlag{
				Name:  "export",
				Usage: "Also export the test cases as csv or xlsx",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Export destination (default: test_cases.<format> in the current directory)",
			},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			paths := append(c.StringSlice("file"), c.Args().Slice()...)
			if len(paths) == 0 {
				return cli.Exit("at least one file is required (use --file or positional arguments)", 1)
			}

			var format export.Format
			if c.IsSet("export") {
				if format, err = export.ParseFormat(c.String("export")); err != nil {
					return err
				}
			}

			files, err := application.Uploads.ReadPaths(paths)
			if err != nil {
				utils.PrintError(err.Error())
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			utils.PrintHeading("Generating unit tests")
			for _, f := range files {
				utils.PrintInfo(fmt.Sprintf("%s (%s, %s, %s)", f.Name, f.Kind, f.Language, utils.FormatBytes(int64(f.Size))))
			}

			gen, err := application.Generations.Generate(ctx, files, c.String("model"))
			if err != nil {
				utils.PrintError(fmt.Sprintf("Generation failed: %s", err))
				return err
			}

			printGeneration(gen)
			printTestCases(gen.Result.TestCases)

			if dir, err := application.Artifacts.Dir(gen.ID); err == nil {
				utils.PrintInfo("Artifacts: " + color.YellowString("%s", dir))
			}

			if format != "" {
				out := c.String("out")
				if out == "" {
					out = format.Filename()
				}
				if err := exportToFile(ctx, application.Generations, gen.ID, format, out); err != nil {
					utils.PrintError(err.Error())
					return err
				}
				utils.PrintSuccess("Exported to " + color.YellowString("%s", out))
			}

			if gen.TotalTests == 0 {
				utils.PrintWarning("The model reply contained no test cases")
			} else {
				utils.PrintSuccess(fmt.Sprintf("Generated %d test case(s)", gen.TotalTests))
			}
			utils.PrintInfo("Run them with " + color.CyanString("unitforge run --id %s", gen.ID))
			return nil
		},
	}
}

func printGeneration(gen *generation.Generation) {
	utils.PrintDivider()
	utils.PrintKeyValueWithColor("ID", gen.ID, utils.Theme.Heading)
	status := utils.Theme.Success
	if gen.Status == generation.StatusFailed {
		status = utils.Theme.Error
	}
	utils.PrintKeyValueWithColor("Status", string(gen.Status), status)
	utils.PrintKeyValue("Provider", gen.Provider)
	utils.PrintKeyValue("Model", gen.Model)
	if gen.Strategy != "" {
		utils.PrintKeyValue("Strategy", string(gen.Strategy))
	}
	utils.PrintKeyValue("Files", fmt.Sprintf("%v", gen.FileNames()))
	utils.PrintKeyValue("Tests", fmt.Sprintf("%d", gen.TotalTests))
	utils.PrintKeyValue("Tokens", fmt.Sprintf("%d in / %d out", gen.InputTokens, gen.OutputTokens))
	utils.PrintKeyValue("Duration", utils.FormatDuration(gen.Duration))
	utils.PrintKeyValue("Created", gen.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if gen.Error != "" {
		utils.PrintKeyValueWithColor("Error", gen.Error, utils.Theme.Error)
	}
	utils.PrintDivider()
}

func printTestCases(cases []extractor.TestCase) {
	if len(cases) == 0 {
		return
	}
	rows := make([][]string, len(cases))
	for i, tc := range cases {
		rows[i] = []string{tc.ID, tc.FunctionName, tc.Type, tc.Description, tc.ExpectedOutput}
	}
	utils.PrintTable("Test Cases", []string{"ID", "Function", "Type", "Description", "Expected"}, rows)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
