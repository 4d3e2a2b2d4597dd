package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/model"
)

var (
	reviewFile string
	reviewSet  []string
)

var reviewCmd = &cobra.Command{
	Use:   "review <test-id>",
	Short: "Submit reviewer corrections and mark the test READY",
	Long:  "Corrections come from a JSON object file (--file) and/or repeated --set field=value pairs. --set wins on conflicts. An empty value or \"null\" clears the field. Without corrections the extracted values are approved as they are.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		submitted, err := reviewSubmission(reviewFile, reviewSet)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Review(ctx, args[0], submitted)
		if err != nil {
			return eris.Wrap(err, "review")
		}
		if res == nil {
			zap.L().Warn("test not found, nothing reviewed", zap.String("test_id", args[0]))
			return nil
		}

		zap.L().Info("review saved",
			zap.String("test_id", res.Test.ID),
			zap.Int("edits", len(res.NewEdits)),
			zap.Int64("version", res.Test.Version),
		)
		edits := res.NewEdits
		if edits == nil {
			edits = []model.ManualEdit{}
		}
		return printJSON(cmd.OutOrStdout(), edits)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewFile, "file", "", "JSON object of field values")
	reviewCmd.Flags().StringArrayVar(&reviewSet, "set", nil, "field=value correction (repeatable)")
	rootCmd.AddCommand(reviewCmd)
}

// reviewSubmission merges the file and --set pairs into one submission map.
// Field names are not validated here; unknown names are ignored by review.
func reviewSubmission(file string, sets []string) (map[string]any, error) {
	submitted := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", file)
		}
		if submitted, err = model.DecodeObject(data); err != nil {
			return nil, eris.Wrapf(err, "parse %s", file)
		}
		if submitted == nil {
			submitted = map[string]any{}
		}
	}

	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, eris.Errorf("invalid --set %q, want field=value", kv)
		}
		value = strings.TrimSpace(value)
		if value == "" || value == "null" {
			submitted[name] = nil
			continue
		}
		if strings.HasPrefix(value, "{") {
			obj, err := model.DecodeObject([]byte(value))
			if err != nil {
				return nil, eris.Wrapf(err, "invalid --set %s", name)
			}
			submitted[name] = obj
			continue
		}
		submitted[name] = value
	}
	return submitted, nil
}
