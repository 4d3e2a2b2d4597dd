package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/model"
)

var (
	ingestName    string
	ingestSource  string
	ingestLab     string
	ingestFolder  string
	ingestTestID  string
	ingestExtract bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Store local report files as source documents of a test",
	Long:  "Creates a test (or attaches to --test) and stores each file under the test's original folder. With --extract the pipeline runs once all files are stored.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestTestID == "" && ingestName == "" {
			return eris.New("--name is required when creating a test")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		testID, err := ingestTarget(ctx, env)
		if err != nil {
			return err
		}

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read %s", path)
			}
			doc, err := env.Service.AddDocument(ctx, testID, path, data)
			if err != nil {
				return err
			}
			zap.L().Info("document stored",
				zap.String("test_id", testID),
				zap.String("name", doc.OriginalName),
				zap.String("mime_type", doc.MimeType),
				zap.Int64("bytes", doc.SizeBytes),
			)
		}

		if !ingestExtract {
			return printJSON(cmd.OutOrStdout(), map[string]string{"testId": testID})
		}
		res, err := env.Service.Extract(ctx, testID)
		if err != nil {
			return eris.Wrap(err, "extract")
		}
		if res == nil {
			return nil
		}
		return printJSON(cmd.OutOrStdout(), extractSummary(res))
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "test name")
	ingestCmd.Flags().StringVar(&ingestSource, "binder-source", "", "binder supplier")
	ingestCmd.Flags().StringVar(&ingestLab, "lab", "", "testing lab")
	ingestCmd.Flags().StringVar(&ingestFolder, "folder", "", "storage folder (default: test id)")
	ingestCmd.Flags().StringVar(&ingestTestID, "test", "", "attach to an existing test instead of creating one")
	ingestCmd.Flags().BoolVar(&ingestExtract, "extract", false, "run extraction after storing the files")
	rootCmd.AddCommand(ingestCmd)
}

func ingestTarget(ctx context.Context, env *pipelineEnv) (string, error) {
	if ingestTestID != "" {
		t, err := env.Service.GetTest(ctx, ingestTestID)
		if err != nil {
			return "", err
		}
		return t.ID, nil
	}

	t := &model.BinderTest{
		Name:         ingestName,
		BinderSource: ingestSource,
		Lab:          ingestLab,
		FolderName:   ingestFolder,
	}
	if err := env.Service.CreateTest(ctx, t); err != nil {
		return "", eris.Wrap(err, "create test")
	}
	zap.L().Info("test created", zap.String("test_id", t.ID), zap.String("folder", t.FolderName))
	return t.ID, nil
}
