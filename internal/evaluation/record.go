package evaluation

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Record holds the structured scores extracted from a model response. Score
// fields are pointers so that an absent or rejected value stays null all the
// way to the output file.
type Record struct {
	UnclearCriteria        StringList `json:"unclear_criteria"`
	EligibilityProbability *float64   `json:"eligibility_probability"`
	ClinicalBenefitScore   *float64   `json:"clinical_benefit_score"`
	TotalScore             *float64   `json:"total_score"`
	Reasoning              string     `json:"reasoning"`
	TreatmentType          string     `json:"treatment_type"`
	NumberOfPatients       string     `json:"number_of_patients"`
	TrialPhase             string     `json:"trial_phase"`
	StartDate              string     `json:"start_date"`
	Location               string     `json:"location"`
	Link                   string     `json:"link"`
	Drug                   string     `json:"drug"`
}

// Result pairs a trial with its evaluation record.
type Result struct {
	TrialID     string    `json:"trial_id"`
	Response    Record    `json:"response"`
	Model       string    `json:"model,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at,omitzero"`
}

type Results []*Result

// Score returns the ranking score of the result. Results without a total
// score rank as zero.
func (r *Result) Score() float64 {
	if r == nil || r.Response.TotalScore == nil {
		return 0
	}
	return *r.Response.TotalScore
}

// IDSet returns the set of trial IDs present in the results.
func (rs Results) IDSet() map[string]struct{} {
	ids := make(map[string]struct{}, len(rs))
	for _, res := range rs {
		ids[res.TrialID] = struct{}{}
	}
	return ids
}

// TopByScore returns the n best results ordered by descending total score.
// Ties keep their original order.
func (rs Results) TopByScore(n int) Results {
	if n < 0 {
		n = 0
	}

	sorted := make(Results, len(rs))
	copy(sorted, rs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})

	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// StringList tolerates providers answering with either a JSON array or a bare
// string where a list is expected.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*s = coerceStringList(v)
	return nil
}

func (s StringList) Join(sep string) string {
	return strings.Join(s, sep)
}
