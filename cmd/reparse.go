package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/pipeline"
	"github.com/ecotek/binderlab/internal/store"
)

var (
	reparseStatus string
	reparseSearch string
	reparseLimit  int
)

var reparseCmd = &cobra.Command{
	Use:   "reparse [test-id...]",
	Short: "Re-run extraction for many tests",
	Long:  "Re-runs extraction for the given tests, or for every test matching --status/--search. Reviewer corrections are kept. A failing test is logged and does not stop the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if len(ids) == 0 {
			ids, err = collectTestIDs(ctx, env.Store, store.TestFilter{
				Status: model.Status(reparseStatus),
				Search: reparseSearch,
			}, reparseLimit)
			if err != nil {
				return err
			}
		}

		sum, err := reparseTests(ctx, ids, cfg.Batch.Concurrency, env.Service.Extract)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

func init() {
	reparseCmd.Flags().StringVar(&reparseStatus, "status", "", "only tests in this status (PENDING_REVIEW or READY)")
	reparseCmd.Flags().StringVar(&reparseSearch, "search", "", "only tests whose name, binder source or lab matches")
	reparseCmd.Flags().IntVar(&reparseLimit, "limit", 0, "max number of tests (0 = all)")
	rootCmd.AddCommand(reparseCmd)
}

// testLister is the part of store.Store reparse needs.
type testLister interface {
	ListTests(ctx context.Context, filter store.TestFilter) ([]model.BinderTest, error)
}

const reparsePageSize = 100

// collectTestIDs pages through the store until limit ids are collected or
// the listing is exhausted.
func collectTestIDs(ctx context.Context, st testLister, filter store.TestFilter, limit int) ([]string, error) {
	var ids []string
	filter.Limit = reparsePageSize
	for {
		if limit > 0 && len(ids) >= limit {
			return ids[:limit], nil
		}
		page, err := st.ListTests(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "reparse: list tests")
		}
		for _, t := range page {
			ids = append(ids, t.ID)
		}
		if len(page) < reparsePageSize {
			if limit > 0 && len(ids) > limit {
				ids = ids[:limit]
			}
			return ids, nil
		}
		filter.Offset += len(page)
	}
}

// extractFunc runs extraction for one test.
type extractFunc func(ctx context.Context, id string) (*pipeline.ExtractResult, error)

type reparseSummary struct {
	Total     int   `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// reparseTests extracts ids concurrently. Individual failures are counted,
// not returned; only cancellation of ctx aborts the batch.
func reparseTests(ctx context.Context, ids []string, concurrency int, extract extractFunc) (reparseSummary, error) {
	sum := reparseSummary{Total: len(ids)}
	if len(ids) == 0 {
		zap.L().Info("no tests to reparse")
		return sum, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("reparsing tests",
		zap.Int("tests", len(ids)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed, skipped atomic.Int64

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			log := zap.L().With(zap.String("test_id", id))

			res, err := extract(gctx, id)
			switch {
			case err != nil:
				failed.Add(1)
				log.Error("reparse failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			case res == nil:
				skipped.Add(1)
				log.Warn("reparse skipped, test not found")
				return nil
			}

			succeeded.Add(1)
			log.Info("reparse complete",
				zap.Int("missing", len(res.Outcome.Missing)),
				zap.Bool("used_ai", res.Outcome.UsedAI),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sum, eris.Wrap(err, "reparse")
	}

	sum.Succeeded = succeeded.Load()
	sum.Failed = failed.Load()
	sum.Skipped = skipped.Load()
	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "reparse cancelled")
	}

	zap.L().Info("reparse complete",
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("failed", sum.Failed),
		zap.Int64("skipped", sum.Skipped),
	)
	return sum, nil
}
