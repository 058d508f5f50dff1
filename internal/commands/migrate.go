package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/unitforge/internal/app"
	"github.com/tildaslashalef/unitforge/internal/database"
	"github.com/tildaslashalef/unitforge/internal/migrations"
	"github.com/tildaslashalef/unitforge/internal/utils"
)

// MigrateCommand returns the CLI command for database migrations
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Manage database migrations",
		Hidden: true,
		Before: func(c *cli.Context) error {
			if _, err := app.OpenDatabase("", ""); err != nil {
				utils.PrintError(err.Error())
				return err
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return database.CloseDB()
		},
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(c *cli.Context) error {
					utils.PrintInfo("Applying embedded migrations")
					if err := database.RunMigrations(); err != nil {
						utils.PrintError(err.Error())
						return err
					}
					return printVersion()
				},
			},
			{
				Name:  "down",
				Usage: "Revert the last migration",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of migrations to revert",
						Value: 1,
					},
				},
				Action: func(c *cli.Context) error {
					steps := c.Int("steps")
					utils.PrintWarning(fmt.Sprintf("Reverting %d embedded migration(s)", steps))
					if err := database.RevertMigrations(steps); err != nil {
						utils.PrintError(err.Error())
						return err
					}
					return printVersion()
				},
			},
			{
				Name:  "version",
				Usage: "Print the applied schema version",
				Action: func(c *cli.Context) error {
					return printVersion()
				},
			},
		},
	}
}

func printVersion() error {
	version, dirty, err := database.MigrationVersion()
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to read schema version: %s", err))
		return err
	}
	if dirty {
		utils.PrintWarning(fmt.Sprintf("Schema version %d is dirty; fix it manually before migrating again", version))
		return nil
	}
	names, err := migrations.Names()
	if err != nil {
		return err
	}
	if pending := len(names) - int(version); pending > 0 {
		utils.PrintWarning(fmt.Sprintf("Schema version %d, %d migration(s) pending", version, pending))
		return nil
	}
	utils.PrintSuccess(fmt.Sprintf("Schema version %d", version))
	return nil
}
