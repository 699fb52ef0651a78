package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseResponse extracts a Record from a raw model response. It never fails:
// anything that cannot be read stays null in the record, and the returned
// warnings describe what was dropped.
func ParseResponse(raw string) (Record, []string) {
	var warnings []string

	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		warnings = append(warnings, fmt.Sprintf("response is not valid json, recording null scores: %v", err))
		return Record{}, warnings
	}

	record := Record{
		UnclearCriteria:  coerceStringList(data["unclear_criteria"]),
		Reasoning:        coerceString(data["reasoning"]),
		TreatmentType:    coerceString(data["treatment_type"]),
		NumberOfPatients: coerceString(data["number_of_patients"]),
		TrialPhase:       coerceString(data["trial_phase"]),
		StartDate:        coerceString(data["start_date"]),
		Location:         coerceString(data["location"]),
		Link:             coerceString(data["link"]),
		Drug:             coerceString(data["drug"]),
	}

	record.EligibilityProbability = takeScore(data, "eligibility_probability", &warnings)
	record.ClinicalBenefitScore = takeScore(data, "clinical_benefit_score", &warnings)

	// total_score is always derived locally, never taken from the response.
	if record.EligibilityProbability != nil && record.ClinicalBenefitScore != nil {
		total := *record.ClinicalBenefitScore * *record.EligibilityProbability / 100
		record.TotalScore = &total
	}

	return record, warnings
}

// takeScore reads a numeric field and validates its range. Anything that is
// not a JSON number between 0 and 100 is dropped to null.
func takeScore(data map[string]any, field string, warnings *[]string) *float64 {
	v, ok := data[field]
	if !ok || v == nil {
		return nil
	}

	f, ok := v.(float64)
	if !ok || f < 0 || f > 100 {
		*warnings = append(*warnings, fmt.Sprintf("%s is not a number between 0 and 100, dropping value", field))
		return nil
	}

	return &f
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStringList(v any) StringList {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		list := make(StringList, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				list = append(list, s)
			}
		}
		return list
	default:
		if s := coerceString(v); s != "" {
			return StringList{s}
		}
		return nil
	}
}
