package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/overlab-kevin/clinical-trial-matcher/internal/ai"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/evaluation"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/store"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/trials"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/utils"

	"go.uber.org/zap"
)

const defaultMaxLogLength = 200

// Pipeline evaluates trials against a patient profile one by one, recording
// each result before moving on.
type Pipeline struct {
	generator ai.Generator
	results   *store.Store
	logger    *zap.Logger
	pacing    time.Duration
	maxLogLen int
	ladder    []Reduction
	prior     evaluation.Results
	topCount  int
}

// Options tunes a pipeline run.
type Options struct {
	// Pacing is the pause between consecutive evaluations. Zero disables it.
	Pacing time.Duration
	// MaxLogLength caps prompt and response previews in debug logs.
	MaxLogLength int
	// PriorResults and TopCount restrict the run to the best trials of an
	// earlier run. Both must be set for the restriction to apply.
	PriorResults evaluation.Results
	TopCount     int
	// Ladder overrides the payload reductions tried per trial.
	Ladder []Reduction
}

// Summary reports what a run did.
type Summary struct {
	Total     int
	Evaluated int
	Skipped   int
	Failed    int
}

func New(generator ai.Generator, results *store.Store, logger *zap.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	ladder := opts.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}

	return &Pipeline{
		generator: generator,
		results:   results,
		logger:    logger,
		pacing:    opts.Pacing,
		maxLogLen: maxLogLen,
		ladder:    ladder,
		prior:     opts.PriorResults,
		topCount:  opts.TopCount,
	}
}

// Run evaluates every pending trial in order. Trials already present in the
// results file are skipped without contacting the provider. The run keeps
// going past per-trial failures and stops only on cancellation or when the
// results file cannot be written.
func (p *Pipeline) Run(ctx context.Context, list *trials.Trials, patientData string) (*Summary, error) {
	done, err := p.results.ProcessedIDs()
	if err != nil {
		return nil, fmt.Errorf("loading previous results: %w", err)
	}

	if p.topCount > 0 && len(p.prior) > 0 {
		top := p.prior.TopByScore(p.topCount)
		before := list.Len()
		list = list.Subset(top.IDSet())
		p.logger.Info("restricting the run to the best prior results",
			zap.Int("top", p.topCount),
			zap.Int("candidates", before),
			zap.Int("selected", list.Len()),
		)
	}

	summary := &Summary{Total: list.Len()}

	for i, trial := range list.Items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if _, ok := done[trial.ID]; ok {
			p.logger.Info("skipping trial, already processed", zap.String("trial_id", trial.ID))
			summary.Skipped++
			continue
		}

		p.logger.Info("evaluating trial",
			zap.String("trial_id", trial.ID),
			zap.Int("position", i+1),
			zap.Int("total", list.Len()),
		)

		raw, err := p.evaluate(ctx, trial, patientData)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			p.logger.Warn("skipping trial, evaluation failed at every payload reduction",
				zap.String("trial_id", trial.ID),
				zap.Error(err),
			)
			summary.Failed++
			continue
		}

		record, warnings := evaluation.ParseResponse(raw)
		for _, warning := range warnings {
			p.logger.Warn(warning, zap.String("trial_id", trial.ID))
		}

		result := &evaluation.Result{
			TrialID:     trial.ID,
			Response:    record,
			Model:       p.generator.Model(),
			EvaluatedAt: time.Now().UTC(),
		}

		if err := p.results.Append(result); err != nil {
			return summary, fmt.Errorf("writing result for trial %s: %w", trial.ID, err)
		}
		summary.Evaluated++

		p.logger.Info("recorded evaluation",
			zap.String("trial_id", trial.ID),
			zap.Float64p("total_score", record.TotalScore),
		)

		if err := utils.WaitFor(ctx, p.pacing); err != nil {
			return summary, err
		}
	}

	p.logger.Info("finished processing trials",
		zap.Int("total", summary.Total),
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// evaluate walks the reduction ladder until the provider answers. An empty
// answer counts as received and parses into null scores downstream.
func (p *Pipeline) evaluate(ctx context.Context, trial *trials.Trial, patientData string) (string, error) {
	var lastErr error

	for i, rung := range p.ladder {
		if i > 0 {
			p.logger.Warn("retrying with a reduced trial payload",
				zap.String("trial_id", trial.ID),
				zap.String("reduction", rung.Name),
			)
		}

		prompt, err := buildPrompt(patientData, rung.Apply(trial))
		if err != nil {
			return "", err
		}

		p.logger.Debug("sending evaluation request",
			zap.String("trial_id", trial.ID),
			zap.String("reduction", rung.Name),
			zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
			zap.String("prompt_preview", utils.TruncateForLog(prompt, p.maxLogLen)),
		)

		raw, err := p.generator.GenerateContent(ctx, prompt)
		if err == nil {
			p.logger.Debug("received evaluation response",
				zap.String("trial_id", trial.ID),
				zap.Int("response_length", utf8.RuneCountInString(raw)),
				zap.String("response_preview", utils.TruncateForLog(raw, p.maxLogLen)),
			)
			return raw, nil
		}

		if errors.Is(err, ai.ErrEmptyResponse) {
			p.logger.Warn("provider returned an empty response, recording null scores",
				zap.String("trial_id", trial.ID),
			)
			return "", nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return "", lastErr
}
