package recovery

import "fmt"

// Trial is one decision: which options were on screen, what each would have
// paid, and which option (index into Options) was observed.
type Trial struct {
	Index     int       `json:"index"`
	Condition string    `json:"condition,omitempty"`
	Options   []int     `json:"options"`
	Outcomes  []float64 `json:"outcomes"`
	Observed  int       `json:"observed"`
}

func (t Trial) clone() Trial {
	out := t
	out.Options = append([]int(nil), t.Options...)
	out.Outcomes = append([]float64(nil), t.Outcomes...)
	return out
}

// Participant is one participant's fixed trial sequence.
type Participant struct {
	ID     string  `json:"id"`
	Trials []Trial `json:"trials"`
}

// TrialDesign is the per-participant structure shared by every model.
type TrialDesign struct {
	Participants []Participant `json:"participants"`
}

// ParticipantCount returns the number of participants in the design.
func (d TrialDesign) ParticipantCount() int {
	return len(d.Participants)
}

// Clone deep-copies the design.
func (d TrialDesign) Clone() TrialDesign {
	out := TrialDesign{Participants: make([]Participant, len(d.Participants))}
	for i, p := range d.Participants {
		cp := Participant{ID: p.ID, Trials: make([]Trial, len(p.Trials))}
		for j, t := range p.Trials {
			cp.Trials[j] = t.clone()
		}
		out.Participants[i] = cp
	}
	return out
}

// SyntheticDataset is a design whose observed responses all came from one simulation.
type SyntheticDataset struct {
	TrialDesign
}

// WithObserved builds a fresh dataset from d with every observed response replaced.
// responses must cover every participant and every trial; anything less is an error
// so that no value from d survives into the result.
func (d TrialDesign) WithObserved(responses [][]int) (SyntheticDataset, error) {
	if len(responses) != len(d.Participants) {
		return SyntheticDataset{}, fmt.Errorf("simulated %d participants, design has %d", len(responses), len(d.Participants))
	}
	out := d.Clone()
	for i := range out.Participants {
		p := &out.Participants[i]
		if len(responses[i]) != len(p.Trials) {
			return SyntheticDataset{}, fmt.Errorf("participant %s: simulated %d responses for %d trials", p.ID, len(responses[i]), len(p.Trials))
		}
		for j := range p.Trials {
			r := responses[i][j]
			if r < 0 || r >= len(p.Trials[j].Options) {
				return SyntheticDataset{}, fmt.Errorf("participant %s trial %d: response %d out of range", p.ID, j, r)
			}
			p.Trials[j].Observed = r
		}
	}
	return SyntheticDataset{TrialDesign: out}, nil
}
