package pipeline

import (
	"github.com/overlab-kevin/clinical-trial-matcher/internal/trials"
)

// Reduction names one way of shrinking the trial payload before prompting.
type Reduction struct {
	Name  string
	Apply func(*trials.Trial) *trials.Trial
}

// DefaultLadder sends the full study first and retries once with the bulky
// contacts and locations module stripped.
func DefaultLadder() []Reduction {
	return []Reduction{
		{
			Name:  "full",
			Apply: func(t *trials.Trial) *trials.Trial { return t },
		},
		{
			Name:  "no_contacts_locations",
			Apply: (*trials.Trial).WithoutContactsLocations,
		},
	}
}
