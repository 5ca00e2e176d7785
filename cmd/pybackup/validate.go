package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without writing any archive. Prints the
resolved archives, their source directories and any configuration warnings.`,
	RunE: validateConfig,
}

func init() {
	validateCmd.Flags().String(optFormat, "text", "output format (text or yaml)")
	_ = viper.BindPFlag(optFormat, validateCmd.Flags().Lookup(optFormat))
}

func validateConfig(cmd *cobra.Command, args []string) error {
	opts, err := currentOptions()
	if err != nil {
		log.Error().Err(err).Msg("invalid options")
		return err
	}

	// Load configuration
	plan, path, err := loadPlan(log.Logger, opts)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("configuration validation failed")
		return err
	}

	return printPlan(cmd.OutOrStdout(), newPlanView(afero.NewOsFs(), path, plan), viper.GetString(optFormat))
}
