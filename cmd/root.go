package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tzheng/jobpilot/internal/content"
	"github.com/tzheng/jobpilot/internal/pipeline"
)

const (
	app = "jobpilot"

	defaultLedgerPath = "jobpilot.db"
	defaultOutputDir  = "artifacts"
)

// Config is the full jobpilot.yaml shape. Filter and scoring sections stay
// raw maps; their packages decode them.
type Config struct {
	Ledger       string          `mapstructure:"ledger"`
	EvidenceFile string          `mapstructure:"evidence-file"`
	Filter       map[string]any  `mapstructure:"filter"`
	Scoring      map[string]any  `mapstructure:"scoring"`
	Validation   content.Config  `mapstructure:"validation"`
	Pipeline     pipeline.Config `mapstructure:"pipeline"`
	AI           *AIConfig       `mapstructure:"ai"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobpilot filters scraped job postings, drafts evidence-grounded application content and tracks applications",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobpilot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("ledger", "", "path to the ledger database")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("ledger", rootCmd.PersistentFlags().Lookup("ledger"))

	viper.SetDefault("ledger", defaultLedgerPath)
	viper.SetDefault("pipeline.output_dir", defaultOutputDir)
}

func initConfig() {
	// status and mark work without a config file; run needs one.
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if runCmd.CalledAs() != "" {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return config, nil
}
