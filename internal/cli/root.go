// Package cli wires configuration, backends and the artifact store into the
// recond command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/artifact"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/logger"
)

type options struct {
	configPath string
	runID      string
	logJSON    bool
	logLevel   string
	force      bool
}

// NewRootCommand returns the recond command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "recond",
		Short: "Reconcile tables between a Postgres and a Doris backend",
		Long: `recond reconciles tables copied from a Postgres backend into Doris.

Stages run in order and each persists its artifact under the run id:
  stage1 - discover schemas and row counts, build vintages and column mappings
  stage2 - compare per-column statistics and pick key columns
  stage3 - compare per-row digests on the key columns

Examples:
  recond run --config recon.toml --run-id 2026-10-01
  recond stage2 --config recon.toml --run-id 2026-10-01 --force
  recond report --config recon.toml --run-id 2026-10-01
  recond serve --config recon.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Initialize(opts.logJSON, opts.logLevel); err != nil {
				return errors.Wrap(err, "initialize logger")
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "recond.toml", "TOML configuration file")
	pf.StringVar(&opts.runID, "run-id", "", "run id; defaults to run.id from the config or a fresh UUID")
	pf.BoolVar(&opts.logJSON, "log-json", false, "emit JSON logs")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.BoolVar(&opts.force, "force", false, "rerun stages whose artifact already exists")

	for _, s := range []struct{ name, short string }{
		{artifact.Stage1, "Discover both sides and consolidate table metadata"},
		{artifact.Stage2, "Compare column statistics of the Stage-1 tables"},
		{artifact.Stage3, "Compare row digests of the Stage-2 tables"},
	} {
		root.AddCommand(newStageCommand(opts, s.name, s.short))
	}
	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newReportCommand(opts))
	root.AddCommand(newServeCommand(opts))
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	printError(os.Stderr, err)
	return 1
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	for _, h := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "Hint: %s\n", h)
	}
}
