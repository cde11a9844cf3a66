package design

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mwiater/modrec/internal/recovery"
)

var requiredColumns = []string{"ppt", "trial", "arm_left", "arm_right", "reward_left", "reward_right"}

// LoadCSV reads a design from a bandit CSV file with the columns
// ppt, trial, arm_left, arm_right, reward_left, reward_right and an optional
// response column (0 = left, 1 = right).
func LoadCSV(path string) (recovery.TrialDesign, error) {
	file, err := os.Open(path)
	if err != nil {
		return recovery.TrialDesign{}, fmt.Errorf("open design %q: %w", path, err)
	}
	defer file.Close()

	d, err := ReadCSV(file)
	if err != nil {
		return recovery.TrialDesign{}, fmt.Errorf("read design %q: %w", path, err)
	}
	return d, nil
}

// ReadCSV parses a bandit design. Participants keep their first-seen order and
// trials are sorted by the trial column.
func ReadCSV(r io.Reader) (recovery.TrialDesign, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return recovery.TrialDesign{}, fmt.Errorf("empty design file")
		}
		return recovery.TrialDesign{}, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return recovery.TrialDesign{}, fmt.Errorf("missing column %q", c)
		}
	}
	respCol, hasResponse := cols["response"]

	var order []string
	byID := make(map[string]*recovery.Participant)
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return recovery.TrialDesign{}, err
		}
		line++

		ints := make(map[string]int, 3)
		for _, c := range []string{"trial", "arm_left", "arm_right"} {
			v, err := strconv.Atoi(strings.TrimSpace(row[cols[c]]))
			if err != nil {
				return recovery.TrialDesign{}, fmt.Errorf("line %d: column %s: %w", line, c, err)
			}
			ints[c] = v
		}
		floats := make(map[string]float64, 2)
		for _, c := range []string{"reward_left", "reward_right"} {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[cols[c]]), 64)
			if err != nil {
				return recovery.TrialDesign{}, fmt.Errorf("line %d: column %s: %w", line, c, err)
			}
			floats[c] = v
		}
		if ints["arm_left"] < 0 || ints["arm_right"] < 0 {
			return recovery.TrialDesign{}, fmt.Errorf("line %d: arm ids must be non-negative", line)
		}
		observed := 0
		if hasResponse {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[respCol]), 64)
			if err != nil {
				return recovery.TrialDesign{}, fmt.Errorf("line %d: column response: %w", line, err)
			}
			if v != 0 && v != 1 {
				return recovery.TrialDesign{}, fmt.Errorf("line %d: response must be 0 or 1, got %v", line, v)
			}
			observed = int(v)
		}

		id := strings.TrimSpace(row[cols["ppt"]])
		p, ok := byID[id]
		if !ok {
			p = &recovery.Participant{ID: id}
			byID[id] = p
			order = append(order, id)
		}
		p.Trials = append(p.Trials, recovery.Trial{
			Index:     ints["trial"],
			Condition: fmt.Sprintf("%d-%d", ints["arm_left"], ints["arm_right"]),
			Options:   []int{ints["arm_left"], ints["arm_right"]},
			Outcomes:  []float64{floats["reward_left"], floats["reward_right"]},
			Observed:  observed,
		})
	}
	if len(order) == 0 {
		return recovery.TrialDesign{}, fmt.Errorf("design has no trials")
	}

	d := recovery.TrialDesign{Participants: make([]recovery.Participant, 0, len(order))}
	for _, id := range order {
		p := byID[id]
		sort.SliceStable(p.Trials, func(i, j int) bool { return p.Trials[i].Index < p.Trials[j].Index })
		d.Participants = append(d.Participants, *p)
	}
	return d, nil
}
