package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/m3tro1d/pybackup/internal/services/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup (same as running pybackup without a subcommand)",
	Long: `Execute the backup:
1. Locate and read pybackup.ini
2. Resolve compression settings and pair archive/directories sections
3. Write one zip archive per pair, skipping missing directories
4. Optionally read every archive back (--verify)

A missing source directory only produces a warning. The exit status is 1
when the configuration cannot be loaded or when any archive could not be
written; the remaining archives are still built. Otherwise it is 0.`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	opts, err := currentOptions()
	if err != nil {
		log.Error().Err(err).Msg("invalid options")
		return err
	}

	// Load configuration
	plan, path, err := loadPlan(log.Logger, opts)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("failed to load config")
		return err
	}

	log.Info().
		Str("config", path).
		Int("archives", len(plan.Targets)).
		Str("compression", plan.Compression.String()).
		Str("pairing", string(plan.Pairing)).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run backup
	runnerSvc := runner.New(log.Logger)
	report, err := runnerSvc.Run(ctx, plan, runner.Options{
		Verbose: opts.Verbose,
		Verify:  opts.Verify,
		Jobs:    opts.Jobs,
	})
	if report != nil {
		logSummary(report)
	}
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
