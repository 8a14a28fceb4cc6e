package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conedex/conedex/internal/app/runtime"
	"github.com/conedex/conedex/internal/cli"
	"github.com/conedex/conedex/internal/config"
	"github.com/conedex/conedex/pkg/logger"
)

// Version is set at build time via ldflags.
var Version = "dev"

type rootOptions struct {
	envFiles []string
	logLevel string

	out *cli.Printer
}

func newRootCmd(out *cli.Printer) *cobra.Command {
	opts := &rootOptions{out: out}

	cmd := &cobra.Command{
		Use:           "conedexctl",
		Short:         "Operator tool for ConeDex",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out.Writer())
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for service output")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newImportCmd(opts),
		newNewsletterCmd(opts),
		newJobCmd(opts),
		newPromoteCmd(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.LoggingConfig{
		Level:     o.logLevel,
		Format:    "text",
		Output:    os.Stderr,
		Component: "conedexctl",
	})
	return cfg, log, nil
}

// openRuntime builds the full service graph against the configured database.
// Commands that change data refuse to run on in-memory storage because the
// result would be lost on exit.
func (o *rootOptions) openRuntime(ctx context.Context) (*runtime.Application, error) {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.UsePostgres() {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return runtime.New(ctx, cfg, log)
}
