package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/overlab-kevin/clinical-trial-matcher/internal/ai"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/ai/gemini"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/evaluation"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/logger"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/pipeline"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/secrets"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/store"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/trials"

	"github.com/joho/godotenv"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes         = "Yes"
	PromptNo          = "No"
	PromptListPending = "List pending trials"
)

var prompt = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptYes, PromptNo, PromptListPending},
}

var runCmd = &cobra.Command{
	Use:   "run <patient-file> <trials-file> <output-file> <model>",
	Short: "Evaluate clinical trials against a patient profile and record scored results",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("previous-output", "p", "", "results file from an earlier run used to pick the best trials")
	runCmd.Flags().IntP("top", "n", 0, "evaluate only the top N trials from --previous-output")
	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before starting")
}

// run is the main command for the cli.
func run(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if config == nil {
		config = &Config{}
	}

	logger.Info("starting the trial-matcher", zap.String("version", version))

	patientFile, trialsFile, outputFile, model := args[0], args[1], args[2], args[3]

	patientData, err := os.ReadFile(patientFile)
	if err != nil {
		logger.Fatal("reading patient data", zap.Error(err))
	}

	list, err := trials.FromFile(trialsFile)
	if err != nil {
		logger.Fatal("loading trials", zap.Error(err))
	}

	logger.Info("loaded trials", zap.Int("count", list.Len()), zap.String("file", trialsFile))

	apiKey, err := resolveAPIKey(config)
	if err != nil {
		logger.Fatal(
			"loading gemini api key",
			zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY or the gemini.api-key/gemini.api-key-file configuration keys"),
		)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, model, retryPolicy(config), logger.With(zap.String("model", model)))
	if err != nil {
		logger.Fatal("creating the gemini generator", zap.Error(err))
	}

	results := store.New(outputFile, logger)

	done, err := results.ProcessedIDs()
	if err != nil {
		logger.Fatal("reading existing results", zap.Error(err))
	}

	prior, top, err := loadPriorResults(cmd, logger)
	if err != nil {
		logger.Fatal("loading previous output", zap.Error(err))
	}

	pending := pendingIDs(list, done)
	logger.Info("ready to evaluate trials",
		zap.Int("total", list.Len()),
		zap.Int("already_processed", list.Len()-len(pending)),
		zap.Int("pending", len(pending)),
		zap.String("output", outputFile),
	)

	if cmd.Flag("auto-approve").Value.String() == "false" {
		if !confirm(logger, pending) {
			return
		}
	}

	p := pipeline.New(generator, results, logger, pipeline.Options{
		Pacing:       config.Pacing,
		MaxLogLength: config.MaxLogLength,
		PriorResults: prior,
		TopCount:     top,
	})

	summary, err := p.Run(ctx, list, string(patientData))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("run interrupted, recorded progress is kept", summaryFields(summary)...)
			return
		}
		logger.Fatal("run aborted", append(summaryFields(summary), zap.Error(err))...)
	}

	logger.Info("all trials processed", append(summaryFields(summary), zap.String("output", outputFile))...)
}

// confirm asks the user before any API traffic happens. Returns false when the
// user backs out.
func confirm(logger *zap.Logger, pending []string) bool {
	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		switch action {
		case PromptYes:
			return true
		case PromptNo:
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return false
		case PromptListPending:
			logger.Info("pending trials", zap.Int("count", len(pending)), zap.Strings("trial_ids", pending))
		}
	}
}

func resolveAPIKey(config *Config) (string, error) {
	var value, file string
	if config != nil && config.Gemini != nil {
		value = config.Gemini.APIKey
		file = config.Gemini.APIKeyFile
	}

	return secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: value,
		File:  file,
		Env:   "GEMINI_API_KEY",
	})
}

func retryPolicy(config *Config) ai.RetryPolicy {
	policy := ai.DefaultRetryPolicy
	if config == nil || config.Retry == nil {
		return policy
	}

	if config.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = config.Retry.MaxAttempts
	}
	if config.Retry.InitialDelay > 0 {
		policy.InitialDelay = config.Retry.InitialDelay
	}
	if config.Retry.MaxDelay > 0 {
		policy.MaxDelay = config.Retry.MaxDelay
	}
	if config.Retry.Multiplier > 0 {
		policy.Multiplier = config.Retry.Multiplier
	}

	return policy
}

// loadPriorResults reads the --previous-output file when a top-N restriction
// is requested. Asking for a restriction that cannot be satisfied is an error
// rather than a silent full run.
func loadPriorResults(cmd *cobra.Command, logger *zap.Logger) (evaluation.Results, int, error) {
	previous := cmd.Flag("previous-output").Value.String()
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return nil, 0, err
	}

	if previous == "" || top <= 0 {
		if previous != "" || top > 0 {
			logger.Warn("ignoring the top-trials restriction, both --previous-output and --top are required",
				zap.String("previous_output", previous),
				zap.Int("top", top),
			)
		}
		return nil, 0, nil
	}

	prior, err := store.New(previous, logger).Load()
	if err != nil {
		return nil, 0, err
	}

	if len(prior) == 0 {
		return nil, 0, fmt.Errorf("previous output %q holds no results", previous)
	}

	return prior, top, nil
}

func pendingIDs(list *trials.Trials, done map[string]struct{}) []string {
	ids := make([]string, 0, list.Len())
	for _, trial := range list.Items {
		if _, ok := done[trial.ID]; !ok {
			ids = append(ids, trial.ID)
		}
	}
	return ids
}

func summaryFields(summary *pipeline.Summary) []zap.Field {
	if summary == nil {
		return nil
	}
	return []zap.Field{
		zap.Int("total", summary.Total),
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	}
}
