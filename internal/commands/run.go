// internal/commands/run.go
package modrec

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mwiater/modrec/internal/appconfig"
	"github.com/mwiater/modrec/internal/bandit"
	"github.com/mwiater/modrec/internal/design"
	"github.com/mwiater/modrec/internal/fitting"
	"github.com/mwiater/modrec/internal/logging"
	"github.com/mwiater/modrec/internal/metrics"
	"github.com/mwiater/modrec/internal/recovery"
	"github.com/mwiater/modrec/internal/results"
	"github.com/spf13/cobra"
)

var (
	headline   = color.New(color.FgCyan, color.Bold).SprintFunc()
	okResult   = color.New(color.FgGreen).SprintFunc()
	warnResult = color.New(color.FgYellow).SprintFunc()
)

// runCmd implements 'run', which executes a full model recovery study.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a model recovery study",
	Long: `The 'run' command simulates datasets from every configured model, refits each
dataset with every configured model, and writes the per-participant fits, a JSON
summary and, optionally, a SQLite database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("configuration not loaded")
		}
		_, err := runRecovery(cmd.Context(), cmd.OutOrStdout(), *cfg)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runOutput lists what a finished run wrote.
type runOutput struct {
	RunID       string
	CSVPath     string
	SummaryPath string
	SQLitePath  string
	Summary     metrics.Summary
}

// runRecovery builds the study from cfg, runs it and writes every output.
func runRecovery(ctx context.Context, out io.Writer, cfg appconfig.Config) (runOutput, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(cfg.Models) == 0 {
		cfg.Models = append([]string(nil), bandit.DefaultModels...)
	}
	if err := cfg.Validate(); err != nil {
		return runOutput{}, err
	}

	specs, err := bandit.Specs(cfg.Models)
	if err != nil {
		return runOutput{}, err
	}
	trialDesign, err := buildDesign(cfg)
	if err != nil {
		return runOutput{}, err
	}

	optimizer := fitting.New(cfg.MaxIterations)
	orch := recovery.NewOrchestrator(bandit.Simulator{}, optimizer)
	orch.NumberOfStarts = cfg.NumberOfStarts
	orch.Parallel = cfg.Parallel
	orch.Workers = cfg.Workers
	orch.Seed = cfg.SeedPtr()
	orch.Progress = progressPrinter(out, len(specs)*len(specs))

	fmt.Fprintln(out, headline(fmt.Sprintf("Model recovery: %v, %d runs, %d participants", cfg.Models, cfg.Repetitions, trialDesign.ParticipantCount())))

	table, err := orch.Run(ctx, specs, trialDesign, trialDesign.ParticipantCount(), cfg.Repetitions)
	if err != nil {
		return runOutput{}, err
	}

	res := runOutput{RunID: uuid.NewString()}
	res.Summary, err = metrics.Summarize(table, cfg.Models)
	if err != nil {
		return runOutput{}, err
	}
	res.Summary.RunID = res.RunID

	base := filepath.Join(cfg.ResultsDir(), results.DefaultFileName(cfg.Models, cfg.Repetitions))
	res.CSVPath = base + ".csv"
	if err := results.WriteCSV(res.CSVPath, res.RunID, table); err != nil {
		return runOutput{}, err
	}
	res.SummaryPath = base + ".summary.json"
	if err := results.WriteSummary(res.SummaryPath, res.Summary); err != nil {
		return runOutput{}, err
	}
	if cfg.SQLitePath != "" {
		if err := writeDatabase(ctx, cfg.SQLitePath, res.RunID, table); err != nil {
			return runOutput{}, err
		}
		res.SQLitePath = cfg.SQLitePath
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, metrics.Render(res.Summary))
	fmt.Fprintf(out, "%s run %s written to %s\n", okResult("✓"), res.RunID, res.CSVPath)
	if flagged := nonConverged(res.Summary); flagged > 0 {
		fmt.Fprintln(out, warnResult(fmt.Sprintf("! %d participant fits did not converge", flagged)))
	}
	return res, nil
}

// buildDesign loads the configured design file or generates a synthetic one.
// Synthetic designs draw from a stream no recovery cell uses.
func buildDesign(cfg appconfig.Config) (recovery.TrialDesign, error) {
	if cfg.DesignPath != "" {
		return design.LoadCSV(cfg.DesignPath)
	}
	seed := rand.Uint64()
	if s := cfg.SeedPtr(); s != nil {
		seed = *s
	}
	gen := design.Generator{
		Participants:        cfg.Participants,
		Trials:              cfg.Trials,
		RewardProbabilities: cfg.RewardProbabilities,
	}
	return gen.Generate(rand.New(rand.NewPCG(seed, math.MaxUint64)))
}

func writeDatabase(ctx context.Context, path, runID string, table *recovery.RecoveryTable) error {
	db, err := results.OpenDB(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := results.WriteSQLite(ctx, db, runID, table); err != nil {
		return err
	}
	logging.LogEvent("Recovery results stored in %s", path)
	return nil
}

// progressPrinter prints "Run x of R" with a progress bar each time a full
// repetition's worth of records has finished.
func progressPrinter(out io.Writer, perRun int) recovery.Progress {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	var mu sync.Mutex
	return func(done, total int, rec recovery.FitRecord) {
		if perRun < 1 || done%perRun != 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "Run %d of %d %s\n", done/perRun, total/perRun, bar.ViewAs(float64(done)/float64(total)))
	}
}

func nonConverged(s metrics.Summary) int {
	n := 0
	for _, c := range s.Cells {
		n += c.NonConverged
	}
	return n
}
