package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/analysis"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

var (
	analyzeType   string
	analyzeOutput string
	analyzeNoSave bool
	analyzeDryRun bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <deal-id>",
	Short: "Fetch a deal, analyze it with Claude, and store the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dealID := args[0]

		if !analyzeDryRun && analyzeType == "" {
			return eris.New("--type is required")
		}

		pipeline, err := initPipeline()
		if err != nil {
			return err
		}

		// Dry run stops after formatting: useful for inspecting the
		// document sent to Claude.
		if analyzeDryRun {
			dd, err := pipeline.Run(ctx, dealID)
			if err != nil {
				return err
			}
			return writeOutput(dd.FormattedContent)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		analysisType, err := st.GetAnalysisType(ctx, analyzeType)
		if err != nil {
			return err
		}
		if analysisType == nil {
			return eris.Errorf("analysis type not found: %s", analyzeType)
		}

		analyzer, err := initAnalyzer()
		if err != nil {
			return err
		}

		dd, err := pipeline.Run(ctx, dealID)
		if err != nil {
			return err
		}

		response, err := analyzer.Analyze(ctx, dd.FormattedContent, analysisType.SystemPrompt)
		if err != nil {
			return err
		}

		if !analyzeNoSave {
			record := &model.Analysis{
				AnalysisID:    analysis.GenerateAnalysisID(dealID, analysisType.TypeID),
				DealID:        dealID,
				DealName:      dd.DealName,
				AnalysisType:  analysisType.TypeID,
				TypeName:      analysisType.Name,
				SystemPrompt:  analysisType.SystemPrompt,
				FullResponse:  response,
				PromptVersion: analysisType.Version,
			}
			if err := st.SaveAnalysis(ctx, record); err != nil {
				return err
			}
			zap.L().Info("analyze: saved",
				zap.String("analysis_id", record.AnalysisID),
				zap.Int("sections", analysis.CountSections(response)),
			)
		}

		return writeOutput(response)
	},
}

func writeOutput(text string) error {
	if analyzeOutput == "" {
		fmt.Println(text)
		return nil
	}
	if err := os.WriteFile(analyzeOutput, []byte(text), 0o644); err != nil {
		return eris.Wrapf(err, "analyze: write %s", analyzeOutput)
	}
	return nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeType, "type", "", "analysis type ID (required unless --dry-run)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write result to file instead of stdout")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "skip persisting the analysis")
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "print the formatted deal document without calling Claude")
	rootCmd.AddCommand(analyzeCmd)
}
