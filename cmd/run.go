package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tzheng/jobpilot/internal/ai"
	"github.com/tzheng/jobpilot/internal/ai/gemini"
	"github.com/tzheng/jobpilot/internal/content"
	"github.com/tzheng/jobpilot/internal/evidence"
	"github.com/tzheng/jobpilot/internal/filtering"
	"github.com/tzheng/jobpilot/internal/job"
	"github.com/tzheng/jobpilot/internal/ledger"
	"github.com/tzheng/jobpilot/internal/logger"
	"github.com/tzheng/jobpilot/internal/pipeline"
	"github.com/tzheng/jobpilot/internal/render"
	"github.com/tzheng/jobpilot/internal/scoring"
	"github.com/tzheng/jobpilot/internal/secrets"
)

const (
	PromptYes             = "Yes"
	PromptNo              = "No"
	PromptReportByCompany = "Report by company"
	PromptJobsToFile      = "Dump jobs to file"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptYes, PromptNo, PromptReportByCompany, PromptJobsToFile},
}

var runCmd = &cobra.Command{
	Use:   "run <scraped-jobs.json> [more.json...]",
	Short: "Run the pipeline over scraped job files",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before analyzing jobs")
}

// run is the main command for the cli.
func run(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting jobpilot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config.EvidenceFile == "" {
		logger.Fatal("evidence library is required", zap.String("hint", "set evidence-file in the configuration"))
	}

	jobs, err := loadJobs(args)
	if err != nil {
		logger.Fatal("loading scraped jobs", zap.Error(err))
	}
	logger.Info("loaded scraped jobs", zap.Int("count", jobs.Len()), zap.Strings("files", args))

	if jobs.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs found in input files"))
		return
	}

	p, led, err := buildPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("building pipeline", zap.Error(err))
	}
	defer led.Close()

	autoApprove := cmd.Flag("auto-approve").Value.String() == "true"
	for !autoApprove {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, jobs, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
		if action == PromptYes {
			break
		}
	}

	logger.Info("running the pipeline",
		zap.String("run_id", p.RunID()),
		zap.Int("jobs", jobs.Len()),
	)
	outcomes := p.Batch(ctx, jobs.Items)
	summarize(outcomes, logger)
}

func handleAction(action string, jobs *job.Records, logger *zap.Logger) error {
	switch action {
	case PromptYes:
		return nil
	case PromptNo:
		logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return errExit
	case PromptReportByCompany:
		pretty, _ := json.MarshalIndent(jobs.ReportByCompany(), "", "  ")
		logger.Info(string(pretty), zap.Int("jobs count", jobs.Len()))
		return nil
	case PromptJobsToFile:
		f, err := os.CreateTemp("", app+"-jobs-*.json")
		if err != nil {
			return fmt.Errorf("dump jobs to file: %w", err)
		}
		defer f.Close()
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(jobs); err != nil {
			return fmt.Errorf("dump jobs to file: %w", err)
		}
		logger.Info("dumping jobs to file", zap.String("filename", f.Name()))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// loadJobs reads scraper output files. Both a bare array and a {"jobs":
// [...]} wrapper are accepted; records without an id get one derived from
// their url.
func loadJobs(files []string) (*job.Records, error) {
	all := &job.Records{}
	seen := make(map[string]struct{})

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", file, err)
		}

		// A wrapper that parses but holds no jobs is a valid empty file,
		// not a reason to try the bare-array shape.
		var records job.Records
		if err := json.Unmarshal(data, &records); err != nil {
			var bare []*job.Record
			if err := json.Unmarshal(data, &bare); err != nil {
				return nil, fmt.Errorf("parsing %q: %w", file, err)
			}
			records.Items = bare
		}

		for _, r := range records.Items {
			if r == nil {
				continue
			}
			if strings.TrimSpace(r.ID) == "" {
				id, err := job.Fingerprint(r.URL)
				if err != nil {
					return nil, fmt.Errorf("record %q/%q in %q has no id and no url", r.Company, r.Title, file)
				}
				r.ID = id
			}
			if r.ScrapedAt.IsZero() {
				r.ScrapedAt = time.Now().UTC()
			}
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			all.Items = append(all.Items, r)
		}
	}

	return all, nil
}

func buildPipeline(ctx context.Context, config *Config, logger *zap.Logger) (*pipeline.Pipeline, *ledger.Ledger, error) {
	lib, err := evidence.Load(config.EvidenceFile)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("loaded evidence library",
		zap.String("file", config.EvidenceFile),
		zap.Int("bullets", lib.BulletCount()),
	)

	rules, err := filtering.ParseRuleSet(config.Filter)
	if err != nil {
		return nil, nil, err
	}
	engine, err := filtering.NewEngine(rules, logger)
	if err != nil {
		return nil, nil, err
	}

	scoreCfg, err := scoring.ParseConfig(config.Scoring)
	if err != nil {
		return nil, nil, err
	}
	scorer := scoring.New(scoreCfg)

	analyzer, err := newAnalyzer(ctx, config.AI, lib, scoreCfg.Thresholds, logger)
	if err != nil {
		return nil, nil, err
	}

	led, err := ledger.Open(viper.GetString("ledger"), logger)
	if err != nil {
		return nil, nil, err
	}

	validator := content.NewValidator(lib, config.Validation, logger)

	outputDir := config.Pipeline.OutputDir
	if outputDir == "" {
		outputDir = viper.GetString("pipeline.output_dir")
	}
	renderer := render.NewJSONRenderer(outputDir, logger)

	p := pipeline.New(led, engine, scorer, analyzer, validator, renderer, config.Pipeline, logger)
	return p, led, nil
}

func newAnalyzer(ctx context.Context, cfg *AIConfig, lib *evidence.Library, thresholds scoring.Thresholds, logger *zap.Logger) (ai.Analyzer, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, errors.New("ai.gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries)
	if err != nil {
		return nil, err
	}

	analyzerLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", generator.Model()),
	)

	return gemini.NewAnalyzer(generator, lib, thresholds, analyzerLogger), nil
}

func summarize(outcomes []*pipeline.Outcome, logger *zap.Logger) {
	byStage := make(map[string]int)
	failures := 0
	for _, out := range outcomes {
		byStage[out.Stage]++
		if out.Err != nil {
			failures++
			logger.Warn("job failed",
				zap.String("job_id", out.JobID),
				zap.String("stage", out.Stage),
				zap.Error(out.Err),
			)
		}
		if out.Stage == pipeline.StageRendered {
			logger.Info("resume spec ready",
				zap.String("job_id", out.JobID),
				zap.String("artifact", out.Artifact),
			)
		}
	}

	logger.Info("run summary",
		zap.Int("total", len(outcomes)),
		zap.Int("filtered", byStage[pipeline.StageFiltered]),
		zap.Int("below_threshold", byStage[pipeline.StageScored]),
		zap.Int("blocked", byStage[pipeline.StageBlocked]),
		zap.Int("rendered", byStage[pipeline.StageRendered]),
		zap.Int("failures", failures),
	)
}
