package main

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/m3tro1d/pybackup/internal/config"
	"github.com/m3tro1d/pybackup/internal/models"
)

// cliOptions is the merged view of flags and PYBACKUP_* variables.
type cliOptions struct {
	ConfigFile string
	AppendDate bool
	Verbose    bool
	Verify     bool
	Jobs       int
	Pairing    models.PairingMode
}

func currentOptions() (cliOptions, error) {
	opts := cliOptions{
		ConfigFile: viper.GetString(optConfig),
		AppendDate: viper.GetBool(optDate),
		Verbose:    viper.GetBool(optVerbose),
		Verify:     viper.GetBool(optVerify),
		Jobs:       viper.GetInt(optJobs),
	}

	switch mode := models.PairingMode(strings.ToLower(viper.GetString(optPairing))); mode {
	case "", models.PairPositional, models.PairSuffix:
		opts.Pairing = mode
	default:
		return opts, errors.Newf("unknown pairing %q (want %s or %s)", mode, models.PairPositional, models.PairSuffix)
	}

	if opts.Jobs < 1 {
		return opts, errors.Newf("jobs must be at least 1, got %d", opts.Jobs)
	}
	return opts, nil
}

// loadPlan locates, parses and resolves the configuration file. Warnings
// raised while resolving are logged on logger; the caller decides what to do
// with the plan.
func loadPlan(logger zerolog.Logger, opts cliOptions) (*models.BackupPlan, string, error) {
	path, err := config.Locate(opts.ConfigFile)
	if err != nil {
		return nil, "", err
	}

	sections, err := config.NewParser().LoadFile(path)
	if err != nil {
		return nil, path, err
	}

	plan, err := config.Resolve(sections, config.Options{
		AppendDate: opts.AppendDate,
		Pairing:    opts.Pairing,
	})
	if err != nil {
		return nil, path, errors.Wrapf(err, "resolving %s", path)
	}

	for _, warning := range plan.Warnings {
		logger.Warn().Str("config", path).Msg(warning)
	}

	if err := config.Validate(plan); err != nil {
		return nil, path, errors.Wrap(err, "invalid configuration")
	}

	for _, dest := range config.DuplicateDestinations(plan) {
		logger.Warn().Str("archive", dest).Msg("destination used by more than one archive section; later archives overwrite earlier ones")
	}

	return plan, path, nil
}
