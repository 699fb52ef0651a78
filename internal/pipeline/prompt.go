package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/overlab-kevin/clinical-trial-matcher/internal/trials"
)

//go:embed prompt.md
var promptTemplate string

func buildPrompt(patientData string, trial *trials.Trial) (string, error) {
	details, err := json.MarshalIndent(trial.Raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal trial details: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Patient:\n{{PATIENT_DATA}}\n\nTrial:\n{{TRIAL_DETAILS}}\n\nJSON Response:"
	}

	prompt := strings.ReplaceAll(template, "{{PATIENT_DATA}}", patientData)
	prompt = strings.ReplaceAll(prompt, "{{TRIAL_DETAILS}}", string(details))
	return prompt, nil
}
