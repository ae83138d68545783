package cmd

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tzheng/jobpilot/internal/ledger"
	"github.com/tzheng/jobpilot/internal/logger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the application funnel and filter rejection breakdown",
	Run: func(_ *cobra.Command, _ []string) {
		status()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func status() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	led, err := ledger.Open(viper.GetString("ledger"), logger)
	if err != nil {
		logger.Fatal("opening the ledger", zap.Error(err))
	}
	defer led.Close()

	stats, err := led.Funnel(ctx)
	if err != nil {
		logger.Fatal("computing funnel stats", zap.Error(err))
	}

	fmt.Println("Funnel")
	fmt.Printf("  imported    %d\n", stats.Total)
	fmt.Printf("  filtered    %d\n", stats.Filtered)
	fmt.Printf("  passed      %d\n", stats.Passed)
	fmt.Printf("  analyzed    %d\n", stats.Analyzed)
	fmt.Printf("  validated   %d\n", stats.Validated)
	fmt.Printf("  rendered    %d\n", stats.Rendered)
	fmt.Printf("  applied     %d\n", stats.Applied)
	fmt.Printf("  interviews  %d\n", stats.Interviews)
	fmt.Printf("  offers      %d\n", stats.Offers)
	fmt.Printf("  rejected    %d\n", stats.Rejected)

	breakdown, err := led.RejectionBreakdown(ctx)
	if err != nil {
		logger.Fatal("computing rejection breakdown", zap.Error(err))
	}
	printBreakdown("Filter rejections", breakdown)

	failures, err := led.FailureBreakdown(ctx)
	if err != nil {
		logger.Fatal("computing failure breakdown", zap.Error(err))
	}
	printBreakdown("Stalled analyses", failures)
}

func printBreakdown(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })

	fmt.Printf("\n%s\n", title)
	for _, key := range keys {
		fmt.Printf("  %-30s %d\n", key, counts[key])
	}
}
