package cmd

import (
	"context"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tzheng/jobpilot/internal/ledger"
	"github.com/tzheng/jobpilot/internal/logger"
)

var markNote string

var markCmd = &cobra.Command{
	Use:   "mark <job-id> <" + strings.Join(ledger.Statuses(), "|") + ">",
	Short: "Record an application status transition",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		mark(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(markCmd)

	markCmd.Flags().StringVarP(&markNote, "note", "n", "", "free-form note stored with the transition")
}

func mark(jobID, statusArg string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	to, err := ledger.ParseStatus(statusArg)
	if err != nil {
		logger.Fatal("parsing status", zap.Error(err), zap.Strings("known", ledger.Statuses()))
	}

	led, err := ledger.Open(viper.GetString("ledger"), logger)
	if err != nil {
		logger.Fatal("opening the ledger", zap.Error(err))
	}
	defer led.Close()

	// Marking an application: surface prior contact with this role first.
	if to == ledger.StatusApplied {
		if matches, err := led.FindRepostMatches(ctx, jobID); err == nil {
			for _, m := range matches {
				logger.Warn("an application for a matching posting is already in flight",
					zap.String("prior_job_id", m.JobID),
					zap.String("prior_status", string(m.Status)),
				)
			}
		}
		if matches, err := led.FindRejectionMatches(ctx, jobID); err == nil {
			for _, m := range matches {
				logger.Warn("a matching posting by this employer was rejected before",
					zap.String("prior_job_id", m.JobID),
				)
			}
		}
	}

	if err := led.RecordTransition(ctx, jobID, to, markNote); err != nil {
		logger.Fatal("recording transition", zap.Error(err))
	}

	logger.Info("transition recorded",
		zap.String("job_id", jobID),
		zap.String("status", string(to)),
	)
}
