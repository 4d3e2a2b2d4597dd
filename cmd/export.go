package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/export"
	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/store"
)

var (
	exportOut    string
	exportStatus string
	exportSearch string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write tests, fields and provenance to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ids, err := collectTestIDs(ctx, env.Store, store.TestFilter{
			Status: model.Status(exportStatus),
			Search: exportSearch,
		}, exportLimit)
		if err != nil {
			return err
		}

		tests := make([]model.BinderTest, 0, len(ids))
		for _, id := range ids {
			t, err := env.Store.GetTest(ctx, id)
			if err != nil {
				return eris.Wrapf(err, "export: load %s", id)
			}
			tests = append(tests, *t)
		}

		if err := export.WriteFile(exportOut, tests); err != nil {
			return err
		}
		zap.L().Info("export complete", zap.String("path", exportOut), zap.Int("tests", len(tests)))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "binder_tests.xlsx", "output workbook path")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "only tests in this status")
	exportCmd.Flags().StringVar(&exportSearch, "search", "", "only tests whose name, binder source or lab matches")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max number of tests (0 = all)")
	rootCmd.AddCommand(exportCmd)
}
