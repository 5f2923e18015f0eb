package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/analysis"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/deal"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/store"
)

var (
	batchType string
	batchFile string
)

var batchCmd = &cobra.Command{
	Use:   "batch [deal-id ...]",
	Short: "Analyze multiple deals concurrently",
	Long:  "Runs the fetch-format-analyze pipeline for each deal ID. Each deal is processed as a single sequential run; concurrency applies only across deals.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchType == "" {
			return eris.New("--type is required")
		}

		dealIDs, err := collectDealIDs(args, batchFile)
		if err != nil {
			return err
		}
		if len(dealIDs) == 0 {
			zap.L().Info("batch: no deal IDs given")
			return nil
		}

		pipeline, err := initPipeline()
		if err != nil {
			return err
		}
		analyzer, err := initAnalyzer()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		analysisType, err := st.GetAnalysisType(ctx, batchType)
		if err != nil {
			return err
		}
		if analysisType == nil {
			return eris.Errorf("analysis type not found: %s", batchType)
		}

		return processBatch(ctx, dealIDs, cfg.Batch.MaxConcurrent, pipeline, analyzer, st, analysisType)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchType, "type", "", "analysis type ID (required)")
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one deal ID per line")
	rootCmd.AddCommand(batchCmd)
}

// collectDealIDs merges positional IDs with those read from --file,
// deduplicating while preserving order.
func collectDealIDs(args []string, file string) ([]string, error) {
	ids := append([]string(nil), args...)

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: open %s", file)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				ids = append(ids, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, eris.Wrapf(err, "batch: read %s", file)
		}
	}

	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// processBatch analyzes deals concurrently. A failed deal does not abort the
// batch; per-deal work stays sequential.
func processBatch(ctx context.Context, dealIDs []string, concurrency int, pipeline *deal.Pipeline, analyzer *analysis.Analyzer, st store.Store, analysisType *model.AnalysisType) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("batch: processing",
		zap.Int("deals", len(dealIDs)),
		zap.Int("concurrency", concurrency),
		zap.String("type", analysisType.TypeID),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, dealID := range dealIDs {
		g.Go(func() error {
			log := zap.L().With(zap.String("deal_id", dealID))

			dd, err := pipeline.Run(gctx, dealID)
			if err != nil {
				failed.Add(1)
				log.Error("batch: pipeline failed", zap.Error(err))
				return nil
			}

			response, err := analyzer.Analyze(gctx, dd.FormattedContent, analysisType.SystemPrompt)
			if err != nil {
				failed.Add(1)
				log.Error("batch: analysis failed", zap.Error(err))
				return nil
			}

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
			if err := st.SaveAnalysis(gctx, record); err != nil {
				failed.Add(1)
				log.Error("batch: save failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			log.Info("batch: deal complete", zap.String("analysis_id", record.AnalysisID))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch: processing")
	}

	zap.L().Info("batch: complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
