package recovery

import (
	"fmt"
	"sort"
)

// RecoveryTable is the ordered collection of fit records produced by a run.
type RecoveryTable struct {
	records []FitRecord
	seed    uint64
}

// partition collects the records of one repetition. Partitions are owned by a
// single goroutine and merged into the table once every repetition finished.
type partition struct {
	repetition int
	records    []FitRecord
}

func (p *partition) add(rec FitRecord) {
	p.records = append(p.records, rec)
}

// mergePartitions orders partitions by repetition so the table layout does not
// depend on scheduling.
func mergePartitions(parts []*partition) *RecoveryTable {
	sort.Slice(parts, func(i, j int) bool { return parts[i].repetition < parts[j].repetition })
	total := 0
	for _, p := range parts {
		total += len(p.records)
	}
	t := &RecoveryTable{records: make([]FitRecord, 0, total)}
	for _, p := range parts {
		t.records = append(t.records, p.records...)
	}
	return t
}

// NewTable builds a table from existing records, copying them.
func NewTable(records []FitRecord) *RecoveryTable {
	t := &RecoveryTable{records: make([]FitRecord, len(records))}
	for i, r := range records {
		t.records[i] = r.clone()
	}
	return t
}

// Len returns the number of records.
func (t *RecoveryTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Seed returns the root seed the table was produced with. Re-running with the
// same seed reproduces the table bit for bit.
func (t *RecoveryTable) Seed() uint64 {
	if t == nil {
		return 0
	}
	return t.seed
}

// Records returns a copy of every record in table order.
func (t *RecoveryTable) Records() []FitRecord {
	if t == nil {
		return nil
	}
	out := make([]FitRecord, len(t.records))
	for i, r := range t.records {
		out[i] = r.clone()
	}
	return out
}

// Cell is every repetition of one (generating, fitting) pair.
type Cell struct {
	Generating string
	Fitting    string
	Records    []FitRecord
}

// Cells groups records by (generating, fitting) in first-seen order.
func (t *RecoveryTable) Cells() []Cell {
	if t == nil {
		return nil
	}
	index := make(map[[2]string]int)
	var cells []Cell
	for _, r := range t.records {
		k := [2]string{r.GeneratingModel, r.FittingModel}
		i, ok := index[k]
		if !ok {
			i = len(cells)
			index[k] = i
			cells = append(cells, Cell{Generating: r.GeneratingModel, Fitting: r.FittingModel})
		}
		cells[i].Records = append(cells[i].Records, r.clone())
	}
	return cells
}

// Validate checks that the table holds exactly one record for every
// (repetition, generating, fitting) combination over names.
func (t *RecoveryTable) Validate(repetitions int, names []string) error {
	want := repetitions * len(names) * len(names)
	if t.Len() != want {
		return fmt.Errorf("%w: have %d records, want %d", ErrAggregationInvariant, t.Len(), want)
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	seen := make(map[CellKey]bool, want)
	for _, r := range t.records {
		if !known[r.GeneratingModel] || !known[r.FittingModel] {
			return fmt.Errorf("%w: foreign label %s/%s", ErrAggregationInvariant, r.GeneratingModel, r.FittingModel)
		}
		if r.Repetition < 0 || r.Repetition >= repetitions {
			return fmt.Errorf("%w: repetition %d out of range", ErrAggregationInvariant, r.Repetition)
		}
		k := r.Key()
		if seen[k] {
			return fmt.Errorf("%w: duplicate record %+v", ErrAggregationInvariant, k)
		}
		seen[k] = true
	}
	return nil
}
