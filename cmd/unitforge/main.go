package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/unitforge/internal/app"
	"github.com/tildaslashalef/unitforge/internal/commands"
)

// Version information - populated at build time
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
	Author     = "unknown"
	Email      = "unknown"
)

// standalone commands open only what they need
var standalone = map[string]bool{
	"init":    true,
	"migrate": true,
	"help":    true,
	"h":       true,
}

func main() {
	cliApp := &cli.App{
		Name:  "unitforge",
		Usage: "LLM-powered unit test generator for C and C++",
		Description: "unitforge sends C/C++ sources to Gemini or Vertex AI, extracts the generated test cases,\n" +
			"writes runnable test scripts with a Makefile, and exports the cases as CSV or XLSX.\n\n" +
			"Run `unitforge serve` for the HTTP API, or use the subcommands directly.",
		Version: fmt.Sprintf("%s (%s)", Version, CommitHash),
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Authors: []*cli.Author{
			{
				Name:  Author,
				Email: Email,
			},
		},
		Before: func(c *cli.Context) error {
			if c.NArg() == 0 || standalone[c.Args().First()] {
				return nil
			}

			application, err := app.New(c.Context, Version)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			c.App.Metadata = map[string]interface{}{
				"app": application,
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if application, ok := c.App.Metadata["app"].(*app.App); ok {
				return application.Shutdown()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.ServeCommand(),
			commands.GenerateCommand(),
			commands.HistoryCommand(),
			commands.ShowCommand(),
			commands.ExportCommand(),
			commands.RunCommand(),
			commands.InitCommand(),
			commands.MigrateCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
