package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/overlab-kevin/clinical-trial-matcher/internal/evaluation"
)

// columns is the stable header consumed by downstream spreadsheets. Do not
// reorder.
var columns = []string{
	"trial_id",
	"link",
	"treatment_type",
	"drug",
	"number_of_patients",
	"trial_phase",
	"start_date",
	"location",
	"eligibility_probability",
	"clinical_benefit_score",
	"total_score",
	"unclear_criteria",
	"reasoning",
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// WriteCSV renders results as a CSV table, one row per trial.
func WriteCSV(w io.Writer, results evaluation.Results) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, res := range results {
		if err := cw.Write(row(res)); err != nil {
			return fmt.Errorf("writing csv row for trial %s: %w", res.TrialID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func row(res *evaluation.Result) []string {
	rec := res.Response
	return []string{
		res.TrialID,
		rec.Link,
		rec.TreatmentType,
		rec.Drug,
		rec.NumberOfPatients,
		rec.TrialPhase,
		rec.StartDate,
		rec.Location,
		formatScore(rec.EligibilityProbability),
		formatScore(rec.ClinicalBenefitScore),
		formatScore(rec.TotalScore),
		flatten(rec.UnclearCriteria.Join("; ")),
		flatten(rec.Reasoning),
	}
}

// formatScore renders a score without a trailing decimal when it is whole.
// Null scores become empty cells.
func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func flatten(s string) string {
	return newlines.Replace(s)
}
