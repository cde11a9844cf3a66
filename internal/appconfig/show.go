package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	if cfg == nil {
		fmt.Fprintln(out, "  (none)")
		return
	}

	fmt.Fprintf(out, "  Models:           %v\n", cfg.Models)
	fmt.Fprintf(out, "  Profile:          %s\n", displayProfile(cfg.Profile))
	fmt.Fprintf(out, "  Repetitions:      %d\n", cfg.Repetitions)
	if cfg.DesignPath != "" {
		fmt.Fprintf(out, "  Design:           %s\n", cfg.DesignPath)
	} else {
		fmt.Fprintf(out, "  Participants:     %d\n", cfg.Participants)
		fmt.Fprintf(out, "  Trials:           %d\n", cfg.Trials)
		if len(cfg.RewardProbabilities) > 0 {
			fmt.Fprintf(out, "  Reward Probs:     %v\n", cfg.RewardProbabilities)
		}
	}
	fmt.Fprintf(out, "  Number of Starts: %d\n", cfg.NumberOfStarts)
	fmt.Fprintf(out, "  Max Iterations:   %d\n", cfg.MaxIterations)
	fmt.Fprintf(out, "  Parallel:         %v\n", cfg.Parallel)
	fmt.Fprintf(out, "  Workers:          %d\n", cfg.Workers)
	if cfg.Seed != 0 {
		fmt.Fprintf(out, "  Seed:             %d\n", cfg.Seed)
	} else {
		fmt.Fprintln(out, "  Seed:             (random)")
	}
	fmt.Fprintf(out, "  Output Dir:       %s\n", cfg.ResultsDir())
	if cfg.SQLitePath != "" {
		fmt.Fprintf(out, "  SQLite:           %s\n", cfg.SQLitePath)
	}
	fmt.Fprintf(out, "  Log File:         %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Debug:            %v\n", cfg.Debug)
}

func displayProfile(p string) string {
	if normalizeProfileName(p) == "" {
		return string(ProfileStandard)
	}
	return p
}
