package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/unitforge/internal/app"
	"github.com/tildaslashalef/unitforge/internal/config"
	"github.com/tildaslashalef/unitforge/internal/database"
	"github.com/tildaslashalef/unitforge/internal/utils"
)

// InitCommand returns the CLI command for initializing unitforge
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the unitforge environment",
		Description: "Creates the configuration directory with a sample .env file and applies " +
			"database migrations. Run it once after installing and again after upgrading.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Configuration directory (default: ~/.unitforge)",
			},
		},
		Action: func(c *cli.Context) error {
			utils.PrintHeading("Initializing unitforge")

			configDir := c.String("dir")
			if configDir == "" {
				dir, err := config.DefaultConfigDir()
				if err != nil {
					utils.PrintError(err.Error())
					return err
				}
				configDir = dir
			}
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			// An existing .env is backed up before the sample replaces it
			envPath, err := config.SetupConfigDirectory(configDir, true)
			if err != nil {
				utils.PrintWarning(fmt.Sprintf("Failed to set up configuration files: %s", err))
			}

			utils.PrintInfo("Initializing database...")
			cfg, err := app.OpenDatabase(configDir, envPath)
			if err != nil {
				utils.PrintError(err.Error())
				return err
			}
			defer database.CloseDB()

			utils.PrintInfo("Applying database migrations...")
			before, _, err := database.MigrationVersion()
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to read schema version: %s", err))
				return err
			}
			if err := database.RunMigrations(); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
				return err
			}
			after, _, err := database.MigrationVersion()
			if err != nil {
				return err
			}

			utils.PrintSuccess("unitforge initialized successfully!")
			if after > before {
				utils.PrintSuccess(fmt.Sprintf("Schema migrated from version %d to %d", before, after))
			} else {
				utils.PrintInfo("Database schema is already up-to-date")
			}

			utils.PrintInfo("Configuration file: " + color.YellowString("%s", envPath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			utils.PrintInfo("Artifacts directory: " + color.YellowString("%s", cfg.Artifacts.Root))
			utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
			fmt.Println("")
			utils.PrintInfo("Set " + color.CyanString("UNITFORGE_GEMINI_API_KEY") + " or " +
				color.CyanString("UNITFORGE_VERTEX_PROJECT") + ", then run " + color.CyanString("unitforge serve") + ".")
			return nil
		},
	}
}
