// internal/commands/root.go
package modrec

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/mwiater/modrec/internal/appconfig"
	"github.com/mwiater/modrec/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modrec",
	Short: "modrec — model recovery studies for reinforcement-learning bandit models",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := ensureConfigLoaded(rootCmd.PersistentFlags().Changed("config"))
		if err != nil {
			return err
		}

		for _, name := range []string{"debug", "parallel"} {
			if !cmd.Flags().Changed(name) {
				val := viper.GetBool(name)
				_ = cmd.Flags().Set(name, strconv.FormatBool(val))
			}
		}

		cfg, err := appconfig.FromViper(viper.GetViper())
		if err != nil {
			return err
		}
		cfg.ConfigPath = loaded
		currentConfig = &cfg

		if err := logging.Init(currentConfig.LogFilePath(), cmd.ErrOrStderr()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// flagKeys maps persistent flag names to the config keys they override.
var flagKeys = map[string]string{
	"debug":       "debug",
	"models":      "models",
	"profile":     "profile",
	"repetitions": "repetitions",
	"seed":        "seed",
	"workers":     "workers",
	"parallel":    "parallel",
	"starts":      "numberOfStarts",
	"design":      "designPath",
	"output":      "outputDir",
	"sqlite":      "sqlitePath",
	"logFile":     "logFile",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (JSON or YAML)")

	flags.Bool("debug", false, "enable debug output")
	flags.StringSlice("models", nil, "models to compare, in matrix order (e.g., delta,kernel)")
	flags.String("profile", "", "study profile: quick, standard or publication")
	flags.Int("repetitions", 0, "number of repetitions (0 = profile default)")
	flags.Uint64("seed", 0, "root random seed (0 = unseeded)")
	flags.Int("workers", 0, "repetitions to run concurrently (0 = 1)")
	flags.Bool("parallel", false, "fit participants in parallel")
	flags.Int("starts", 0, "optimizer starts per participant (0 = profile default)")
	flags.String("design", "", "trial design CSV (overrides the synthetic design)")
	flags.String("output", "", "directory for CSV and summary output")
	flags.String("sqlite", "", "also write results to this SQLite database")
	flags.String("logFile", "", "path to the log file")

	bindFlags()
}

// bindFlags makes every persistent flag override its config key.
func bindFlags() {
	for flag, key := range flagKeys {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
}

// ensureConfigLoaded reads and schema-checks the config file and returns its
// path. A missing default file is not an error: flags and defaults still
// produce a usable config, and the returned path is empty. A file named with
// --config must exist.
func ensureConfigLoaded(explicit bool) (string, error) {
	loaded, err := appconfig.ReadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return loaded, nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// DebugEnabled returns true if debug mode is enabled.
func DebugEnabled() bool { return viper.GetBool("debug") }

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
