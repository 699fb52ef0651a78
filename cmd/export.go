package cmd

import (
	"log"
	"os"

	"github.com/overlab-kevin/clinical-trial-matcher/internal/export"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/logger"
	"github.com/overlab-kevin/clinical-trial-matcher/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var exportCmd = &cobra.Command{
	Use:   "export <results-file> <csv-file>",
	Short: "Convert a results file into a CSV table",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		exportResults(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func exportResults(inputFile, outputFile string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	results, err := store.New(inputFile, logger).Load()
	if err != nil {
		logger.Fatal("reading results", zap.Error(err))
	}

	if len(results) == 0 {
		logger.Warn("no results to export", zap.String("file", inputFile))
	}

	file, err := os.Create(outputFile)
	if err != nil {
		logger.Fatal("creating the csv file", zap.Error(err))
	}
	defer file.Close()

	if err := export.WriteCSV(file, results); err != nil {
		logger.Fatal("writing the csv file", zap.Error(err))
	}

	logger.Info("saved csv", zap.String("file", outputFile), zap.Int("rows", len(results)))
}
