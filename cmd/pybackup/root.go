package main

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

// Option keys shared by flags, PYBACKUP_* environment variables and viper.
const (
	optConfig  = "config"
	optVerbose = "verbose"
	optQuiet   = "quiet"
	optJSON    = "json"
	optDate    = "date"
	optJobs    = "jobs"
	optVerify  = "verify"
	optPairing = "pairing"
	optFormat  = "format"
)

var rootCmd = &cobra.Command{
	Use:   "pybackup",
	Short: "Back up directories into zip archives",
	Long: `pybackup reads pybackup.ini and writes one zip archive per archive section,
containing every file below the directories listed in the paired
directories section.

Run without a subcommand to perform the backup. Use with an external
scheduler (cron, systemd timer, etc.) for periodic backups.

Exit status: 0 when every archive was written, 1 when the configuration
cannot be loaded or any archive failed.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	RunE:         runBackup,
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP(optConfig, "c", "", "config file (default: search for pybackup.ini)")
	flags.BoolP(optVerbose, "v", false, "log every file as it is archived")
	flags.BoolP(optQuiet, "q", false, "enable quiet mode (errors only)")
	flags.Bool(optJSON, false, "output logs in JSON format")
	flags.BoolP(optDate, "d", false, "append the current date (DD-MM-YY) to archive names")
	flags.IntP(optJobs, "j", 1, "number of archives built at once")
	flags.Bool(optVerify, false, "read every archive back after writing it")
	flags.String(optPairing, "", "how archive and directories sections are paired (positional or suffix)")

	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("PYBACKUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	noColor := !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
	color.NoColor = noColor

	// Set output format
	if viper.GetBool(optJSON) {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05", NoColor: noColor}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case viper.GetBool(optQuiet):
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case viper.GetBool(optVerbose):
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
