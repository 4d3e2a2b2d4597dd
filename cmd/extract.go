package main

import (
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract <test-id>",
	Short: "Run parser and AI fallback over a test's documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Extract(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "extract")
		}
		if res == nil {
			zap.L().Warn("test not found, nothing extracted", zap.String("test_id", args[0]))
			return nil
		}
		return printJSON(cmd.OutOrStdout(), extractSummary(res))
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

type extractView struct {
	TestID     string           `json:"testId"`
	Status     model.Status     `json:"status"`
	Fields     model.Record     `json:"fields"`
	Provenance model.Provenance `json:"provenance"`
	Missing    []string         `json:"missing"`
	UsedAI     bool             `json:"usedAi"`
	Degraded   []string         `json:"degraded,omitempty"`
}

func extractSummary(res *pipeline.ExtractResult) extractView {
	v := extractView{
		TestID:     res.Test.ID,
		Status:     res.Test.Status,
		Fields:     res.Test.Fields,
		Provenance: res.Test.Provenance,
		Missing:    model.FieldNames(res.Outcome.Missing),
		UsedAI:     res.Outcome.UsedAI,
	}
	for _, e := range res.Outcome.Degraded {
		v.Degraded = append(v.Degraded, e.Error())
	}
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}
