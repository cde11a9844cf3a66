// internal/appconfig/parameter_templates.go
package appconfig

import (
	"strings"
)

// ProfileName identifies a study-size preset.
type ProfileName string

const (
	ProfileQuick       ProfileName = "quick"
	ProfileStandard    ProfileName = "standard"
	ProfilePublication ProfileName = "publication"
)

// StudyParams are the effort settings a profile fills in.
type StudyParams struct {
	Repetitions    int
	NumberOfStarts int
	MaxIterations  int
}

// ParamsForProfile selects a study profile by name.
// Behavior:
//   - empty string => standard (default)
//   - unknown string => standard (default)
func ParamsForProfile(name string) StudyParams {
	switch ProfileName(normalizeProfileName(name)) {
	case ProfileQuick:
		return StudyParams{Repetitions: 5, NumberOfStarts: 2, MaxIterations: 200}
	case ProfilePublication:
		return StudyParams{Repetitions: 500, NumberOfStarts: 10, MaxIterations: 1000}
	case ProfileStandard:
		fallthrough
	default:
		// Matches the reference study: 100 runs, 5 starts.
		return StudyParams{Repetitions: 100, NumberOfStarts: 5, MaxIterations: 400}
	}
}

func normalizeProfileName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
