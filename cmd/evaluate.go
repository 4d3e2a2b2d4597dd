package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ecotek/binderlab/internal/compliance"
)

var evaluateStandard string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <test-id>",
	Short: "Check a test's canonical values against a compliance standard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		t, err := env.Service.GetTest(ctx, args[0])
		if err != nil {
			return err
		}
		std, err := env.Standards.Standard(evaluateStandard)
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}

		rows := compliance.Evaluate(t.Fields, std)
		if rows == nil {
			rows = []compliance.Row{}
		}
		return printJSON(cmd.OutOrStdout(), struct {
			TestID   string           `json:"testId"`
			Standard string           `json:"standard"`
			Rows     []compliance.Row `json:"rows"`
			Overall  *bool            `json:"overall"`
		}{t.ID, std.Code, rows, compliance.Overall(rows)})
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateStandard, "standard", "", "standard code (default from config)")
	rootCmd.AddCommand(evaluateCmd)
}
