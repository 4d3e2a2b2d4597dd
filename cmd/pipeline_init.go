package main

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/aiextract"
	"github.com/ecotek/binderlab/internal/artifact"
	"github.com/ecotek/binderlab/internal/compliance"
	"github.com/ecotek/binderlab/internal/config"
	"github.com/ecotek/binderlab/internal/ocr"
	"github.com/ecotek/binderlab/internal/pipeline"
	"github.com/ecotek/binderlab/internal/resilience"
	"github.com/ecotek/binderlab/internal/store"
	anthropicpkg "github.com/ecotek/binderlab/pkg/anthropic"
)

// pipelineEnv holds the store, artifact storage, service and standards
// needed by the serve and CLI commands.
type pipelineEnv struct {
	Store     store.Store
	Artifacts artifact.Store
	Service   *pipeline.Service
	Standards *compliance.Cache
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens and migrates the store and
// wires the extraction service. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	arts, err := artifact.New(ctx, cfg.Artifacts)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	text, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var fallback pipeline.Fallback
	if ai := initAI(cfg); ai.Enabled() {
		fallback = ai
		zap.L().Info("ai fallback enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Warn("BINDERLAB_ANTHROPIC_KEY not set, ai fallback disabled")
	}

	standards := compliance.NewCache(cfg.Compliance.StandardsPath, cfg.Compliance.StandardCode)
	if err := standards.Load(); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load standards")
	}

	svc := pipeline.NewService(st, arts, pipeline.NewOrchestrator(text, fallback), pipeline.ServiceOptions{
		MissingTestNoop: cfg.Review.MissingTestNoop,
		RecomputeGrade:  cfg.Review.RecomputeGrade,
	})

	return &pipelineEnv{Store: st, Artifacts: arts, Service: svc, Standards: standards}, nil
}

// initStore opens the configured database backend.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite", "":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "binderlab.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// initAI builds the AI fallback extractor. Without an API key the extractor
// is disabled.
func initAI(c *config.Config) *aiextract.Extractor {
	var client anthropicpkg.Client
	if c.Anthropic.Key != "" {
		var opts []option.RequestOption
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(c.Anthropic.BaseURL))
		}
		client = anthropicpkg.NewClient(c.Anthropic.Key, opts...)
	}

	return aiextract.New(client, aiextract.Options{
		Model:         c.Anthropic.Model,
		MaxTokens:     c.Anthropic.MaxTokens,
		RatePerMinute: c.AI.RatePerMinute,
		Policy: resilience.Policy{
			Retry: resilience.FromRetryConfig(
				c.AI.Retry.MaxAttempts,
				c.AI.Retry.InitialBackoffMs,
				c.AI.Retry.MaxBackoffMs,
			),
			AttemptTimeout: time.Duration(c.AI.TimeoutSecs) * time.Second,
			Breaker: resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
				c.AI.Circuit.FailureThreshold,
				c.AI.Circuit.ResetTimeoutSecs,
			)),
		},
	})
}
