package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "trial-matcher"
)

type Config struct {
	Gemini       *GeminiConfig `mapstructure:"gemini"`
	Retry        *RetryConfig  `mapstructure:"retry"`
	Pacing       time.Duration `mapstructure:"pacing"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max-attempts"`
	InitialDelay time.Duration `mapstructure:"initial-delay"`
	MaxDelay     time.Duration `mapstructure:"max-delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "trial-matcher scores clinical trials against a patient profile via the Gemini API",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}

	viper.SetDefault("retry.max-attempts", 5)
	viper.SetDefault("retry.initial-delay", "1s")
	viper.SetDefault("retry.max-delay", "60s")
	viper.SetDefault("retry.multiplier", 2.0)
	viper.SetDefault("pacing", "1s")
	viper.SetDefault("max-log-length", 200)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is trial-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config matters only for the run command and even there it is optional:
	// defaults plus GEMINI_API_KEY are a complete setup.
	if runCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		// An explicitly requested or unparseable config file is fatal.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
