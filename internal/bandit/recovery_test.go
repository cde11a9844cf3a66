package bandit_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/mwiater/modrec/internal/bandit"
	"github.com/mwiater/modrec/internal/design"
	"github.com/mwiater/modrec/internal/fitting"
	"github.com/mwiater/modrec/internal/metrics"
	"github.com/mwiater/modrec/internal/recovery"
	"github.com/stretchr/testify/require"
)

func runStudy(t *testing.T, workers int, parallel bool) *recovery.RecoveryTable {
	t.Helper()
	d, err := design.Generator{Participants: 3, Trials: 40}.Generate(rand.New(rand.NewPCG(5, 5)))
	require.NoError(t, err)
	specs, err := bandit.Specs(bandit.DefaultModels)
	require.NoError(t, err)

	orch := recovery.NewOrchestrator(bandit.Simulator{}, fitting.New(80))
	orch.NumberOfStarts = 2
	orch.Workers = workers
	orch.Parallel = parallel
	seed := uint64(2024)
	orch.Seed = &seed

	table, err := orch.Run(context.Background(), specs, d, d.ParticipantCount(), 2)
	require.NoError(t, err)
	return table
}

func TestEndToEndRecovery(t *testing.T) {
	table := runStudy(t, 1, false)
	require.Equal(t, 2*3*3, table.Len())
	require.NoError(t, table.Validate(2, bandit.DefaultModels))

	for _, rec := range table.Records() {
		require.Len(t, rec.Participants, 3)
		require.Len(t, rec.TrueParameters, 3)
		for _, pf := range rec.Participants {
			require.Equal(t, 40, pf.Trials)
		}
	}

	summary, err := metrics.Summarize(table, bandit.DefaultModels)
	require.NoError(t, err)
	require.Len(t, summary.Confusion, 3)
	for g, row := range summary.Confusion {
		total := 0.0
		for _, v := range row {
			total += v
		}
		if summary.Undecided[g] < 2*3 {
			require.InDelta(t, 1.0, total, 1e-9)
		}
	}
}

func TestEndToEndReproducibleAcrossSchedules(t *testing.T) {
	serial := runStudy(t, 1, false).Records()
	concurrent := runStudy(t, 3, true).Records()
	require.Equal(t, len(serial), len(concurrent))
	for i := range serial {
		require.Equal(t, serial[i].Key(), concurrent[i].Key())
		require.Equal(t, serial[i].TrueParameters, concurrent[i].TrueParameters)
		for j := range serial[i].Participants {
			require.Equal(t, serial[i].Participants[j].Parameters, concurrent[i].Participants[j].Parameters)
			require.Equal(t, serial[i].Participants[j].BIC, concurrent[i].Participants[j].BIC)
		}
	}
}
