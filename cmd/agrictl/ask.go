package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"agri-platform/internal/app"
	"agri-platform/internal/insight"
	"agri-platform/internal/services"
	"agri-platform/pkg/logging"
)

var askSources bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question about the merged dataset",
	Long: `ask answers a single question given as arguments. Without arguments it reads
questions from standard input until "exit".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("an LLM API key is required (GEMINI_API_KEY)")
		}

		var analyzer *insight.Analyzer
		ds, err := app.LoadDataset(ctx, cfg, nil, logger, metricsCollector)
		if err != nil {
			logger.Warn(ctx, "[ASK_NO_DATASET] Merged dataset unavailable", logging.Fields{
				"error": err.Error(),
			})
		} else {
			opt, err := app.InsightOptions(cfg)
			if err != nil {
				return err
			}
			analyzer = insight.NewAnalyzer(ds, opt)
		}

		gen, err := app.NewGenerator(ctx, cfg, logger, metricsCollector)
		if err != nil {
			return err
		}
		defer gen.Close()
		qa := services.NewQAService(analyzer, gen, cfg.LLM.Timeout, logger, metricsCollector)
		opt := services.AskOptions{IncludeSources: askSources}

		out := cmd.OutOrStdout()
		if len(args) > 0 {
			fmt.Fprintln(out, qa.Ask(ctx, strings.Join(args, " "), opt).Text)
			return nil
		}

		fmt.Fprintln(out, "🤖 Agricultural Q&A running... Type 'exit' to stop.")
		fmt.Fprintln(out)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "Ask a question: ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			q := strings.TrimSpace(scanner.Text())
			if strings.EqualFold(q, "exit") {
				return nil
			}
			fmt.Fprintln(out, "\n"+qa.Ask(ctx, q, opt).Text)
			fmt.Fprintln(out, strings.Repeat("-", 80))
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	},
}

func init() {
	askCmd.Flags().BoolVar(&askSources, "sources", false, "append the data source citation")
	rootCmd.AddCommand(askCmd)
}
