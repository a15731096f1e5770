package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/markupc/internal/build"
	"github.com/conneroisu/markupc/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the bundle with a live preview page",
	Long: `Build the bundle, serve it together with a preview page and rebuild on
every input change. Open pages reload as soon as a new bundle is ready.

Routes:
  /            preview page that parses and renders the textarea
  /bundle.js   latest successful bundle
  /ws          reload notifications
  /health      build status and metrics as JSON

Examples:
  markupc serve                        # http://localhost:8080
  markupc serve --port 3000 --host 0.0.0.0`,
	PreRunE: prepareCommand,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	AddStandardFlags(serveCmd, "build", "server", "watch")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCommandConfig(cmd)
	if err != nil {
		return err
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg, logger)
	srv.SetMetrics(gen.Metrics())

	r := &rebuilder{
		gen:    gen,
		cfg:    cfg,
		logger: logger,
		out:    cmd.OutOrStdout(),
		report: reportWriter(cmd, cfg),
		onBuild: func(ctx context.Context, res *build.Result, err error) {
			if err != nil {
				srv.PublishError(ctx, err)
				return
			}
			srv.Publish(ctx, res)
		},
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		return watchAndRebuild(ctx, r)
	})

	return g.Wait()
}
