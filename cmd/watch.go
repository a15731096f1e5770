package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/markupc/internal/build"
	"github.com/conneroisu/markupc/internal/config"
	"github.com/conneroisu/markupc/internal/logging"
	"github.com/conneroisu/markupc/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild the bundle whenever an input changes",
	Long: `Build the bundle, then watch the configuration tree, the render template and
the fragment override directory, rebuilding after every change.

A failed rebuild is reported and the previous bundle is left in place.

Examples:
  markupc watch                        # Watch formatter.yml
  markupc watch --debounce 1s          # Wait longer before rebuilding
  markupc watch --template render.xsl  # Also watch the render template`,
	PreRunE: prepareCommand,
	RunE:    runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	AddStandardFlags(watchCmd, "build", "watch")
}

// rebuilder rebuilds and writes the bundle on every batch of changes.
type rebuilder struct {
	gen    *build.Generator
	cfg    *config.Config
	logger logging.Logger
	out    io.Writer
	report io.Writer
	// onBuild, when set, receives every outcome.
	onBuild func(ctx context.Context, res *build.Result, err error)
}

func (r *rebuilder) rebuild(ctx context.Context) (*build.Result, error) {
	res, err := buildOnce(ctx, r.gen, r.cfg, r.out)
	if r.onBuild != nil {
		r.onBuild(ctx, res, err)
	}
	if err != nil {
		r.logger.Error(ctx, err, "rebuild failed")
		fmt.Fprintf(r.report, "Build failed: %v\n", err)
		return nil, err
	}
	fmt.Fprintln(r.report, summary(r.cfg.Build.Output, res))
	return res, nil
}

// handle is a watcher.ChangeHandler. Build failures are reported, not
// returned, so the watcher keeps running.
func (r *rebuilder) handle(ctx context.Context, events []watcher.ChangeEvent) error {
	for _, event := range events {
		r.logger.Info(ctx, "input changed", "path", event.Path, "type", event.Type.String())
	}
	_, _ = r.rebuild(ctx)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCommandConfig(cmd)
	if err != nil {
		return err
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &rebuilder{
		gen:    gen,
		cfg:    cfg,
		logger: logger,
		out:    cmd.OutOrStdout(),
		report: reportWriter(cmd, cfg),
	}

	return watchAndRebuild(ctx, r)
}

// watchAndRebuild builds once, then rebuilds on change until ctx is done.
func watchAndRebuild(ctx context.Context, r *rebuilder) error {
	fw, err := newInputWatcher(r.cfg, r.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	// The initial build may fail; the watcher still starts so the user can
	// fix the input.
	_, _ = r.rebuild(ctx)

	fw.AddHandler(r.handle)
	if err := fw.Start(ctx); err != nil {
		return err
	}

	r.logger.Info(ctx, "watching for changes", "paths", fw.WatchList())
	<-ctx.Done()
	return nil
}

// reportWriter picks the stream for human-readable progress: stderr when
// the bundle itself goes to stdout.
func reportWriter(cmd *cobra.Command, cfg *config.Config) io.Writer {
	if cfg.Build.Output == "-" {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}
