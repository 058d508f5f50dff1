package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tildaslashalef/unitforge/internal/app"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/tracing"
	"github.com/tildaslashalef/unitforge/internal/utils"
)

// ServeCommand returns the CLI command that runs the HTTP API
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Description: "Serves upload, generation, export and test run endpoints under /api/v1, " +
			"plus /health and /metrics. Stops gracefully on SIGINT or SIGTERM.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides UNITFORGE_SERVER_HOST)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides UNITFORGE_SERVER_PORT)",
			},
		},
		Action: func(c *cli.Context) error {
			application, err := app.FromContext(c)
			if err != nil {
				return err
			}

			cfg := application.Config
			if c.IsSet("host") {
				cfg.Server.Host = c.String("host")
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}
			gin.SetMode(cfg.Server.Mode)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, application.Version, application.Logger)
			if err != nil {
				return fmt.Errorf("failed to set up tracing: %w", err)
			}
			defer func() {
				tctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := shutdownTracing(tctx); err != nil {
					loggy.Warn("Error flushing traces", "error", err)
				}
			}()

			srv := application.NewServer()
			utils.PrintInfo("Listening on " + color.CyanString("http://%s", srv.Addr()))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.ListenAndServe)
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(sctx)
			})

			if err := g.Wait(); err != nil {
				utils.PrintError(fmt.Sprintf("Server stopped: %s", err))
				return err
			}
			utils.PrintSuccess("Server stopped")
			return nil
		},
	}
}
