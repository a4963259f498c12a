package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gastroline/catalog-cli/internal/dataset"
	"github.com/gastroline/catalog-cli/internal/enhance"
	"github.com/gastroline/catalog-cli/internal/model"
	anthropicpkg "github.com/gastroline/catalog-cli/pkg/anthropic"
)

var (
	enhanceInput  string
	enhanceOutput string
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Enhance unprocessed catalog records with AI-generated content",
	Long: `Loads the catalog, batches every record not yet marked as processed, and
sends the batches to Claude in parallel under the per-minute call and token
budgets. Results are matched back onto their rows, matched rows are marked
processed, and a checkpoint is written after every batch. Interrupting the
run stops new batches; in-flight batches finish and are checkpointed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("enhance"); err != nil {
			return err
		}

		tbl, err := dataset.Load(enhanceInput, cfg.Dataset.Encoding)
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}

		schemaCfg := datasetSchemaConfig()
		dataset.EnsureTrackingColumns(tbl, schemaCfg)
		schema, err := dataset.Resolve(tbl, schemaCfg)
		if err != nil {
			return eris.Wrap(err, "resolve catalog schema")
		}

		profiles, err := enhance.LoadPromptProfiles(cfg.Prompts.Path)
		if err != nil {
			return err
		}

		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		svc := enhance.NewService(client, enhance.ServiceConfig{
			Model:         cfg.Anthropic.Model,
			MaxTokens:     int64(cfg.Anthropic.MaxTokens),
			Temperature:   cfg.Anthropic.Temperature,
			IdentifierKey: cfg.Dataset.IdentifierColumn,
			NameKey:       cfg.Dataset.NameColumn,
		}, profiles)

		ckpt := dataset.NewWriter(cfg.Dataset.CheckpointPath)
		progress := func(p model.RunProgress) {
			zap.L().Info("progress",
				zap.Int("processed", p.ProcessedSoFar),
				zap.Int("total", p.TotalEligible),
				zap.Int("batch", p.LastBatchSeq),
				zap.String("outcome", string(p.LastBatchOutcome)),
			)
		}

		eng, err := enhance.New(svc, ckpt, progress, enhance.Config{
			BatchSize:            cfg.Enhance.BatchSize,
			MaxWorkers:           cfg.Enhance.MaxWorkers,
			CallBudgetPerMinute:  cfg.Enhance.CallBudgetPerMinute,
			TokenBudgetPerMinute: cfg.Enhance.TokenBudgetPerMinute,
			MaxRetryAttempts:     cfg.Enhance.MaxRetryAttempts,
			FuzzyMatchThreshold:  cfg.Enhance.FuzzyMatchThreshold,
			Cooldown:             time.Duration(cfg.Enhance.CooldownSecs) * time.Second,
		})
		if err != nil {
			return err
		}

		summary, err := eng.Run(ctx, tbl, schema)
		if err != nil {
			return eris.Wrap(err, "enhancement run")
		}

		out := enhanceOutput
		if out == "" {
			out = enhanceInput
		}
		if err := dataset.Save(out, tbl); err != nil {
			return eris.Wrap(err, "save catalog")
		}

		zap.L().Info("catalog saved",
			zap.String("path", out),
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// datasetSchemaConfig maps the configured column names onto the dataset
// schema resolver.
func datasetSchemaConfig() dataset.SchemaConfig {
	return dataset.SchemaConfig{
		IdentifierColumn:    cfg.Dataset.IdentifierColumn,
		NameColumn:          cfg.Dataset.NameColumn,
		ParentColumn:        cfg.Dataset.ParentColumn,
		ProcessedColumn:     cfg.Dataset.ProcessedColumn,
		ProcessedDateColumn: cfg.Dataset.ProcessedDateColumn,
		ContentColumns:      cfg.Dataset.ContentColumns,
	}
}

func init() {
	enhanceCmd.Flags().StringVar(&enhanceInput, "input", "", "catalog file, .xlsx or .csv (required)")
	enhanceCmd.Flags().StringVar(&enhanceOutput, "output", "", "output path (default: overwrite input)")
	_ = enhanceCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(enhanceCmd)
}
