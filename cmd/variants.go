package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gastroline/catalog-cli/internal/dataset"
	"github.com/gastroline/catalog-cli/internal/variant"
)

var (
	variantsInput  string
	variantsOutput string
)

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Detect size variants and assign parent catalog numbers",
	Long: `Groups records whose names differ only in dimensions or size designations
and writes the naturally lowest catalog number of each group into the parent
column. Run this before enhance so variant records are processed with the
dimension-free prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("variants"); err != nil {
			return err
		}

		tbl, err := dataset.Load(variantsInput, cfg.Dataset.Encoding)
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}

		m := variant.NewMatcher(variant.Config{
			IdentifierColumn:     cfg.Dataset.IdentifierColumn,
			NameColumn:           cfg.Dataset.NameColumn,
			ParentColumn:         cfg.Dataset.ParentColumn,
			ManufacturerColumn:   cfg.Dataset.ManufacturerColumn,
			ExcludeManufacturers: cfg.Variant.ExcludeManufacturers,
			SimilarityThreshold:  cfg.Variant.SimilarityThreshold,
			MinBaseLength:        cfg.Variant.MinBaseLength,
		})

		groups, err := m.Identify(tbl)
		if err != nil {
			return eris.Wrap(err, "identify variants")
		}

		out := variantsOutput
		if out == "" {
			out = variantsInput
		}
		if err := dataset.Save(out, tbl); err != nil {
			return eris.Wrap(err, "save catalog")
		}

		if cfg.Variant.ReportPath != "" {
			if err := variant.WriteReport(cfg.Variant.ReportPath, groups); err != nil {
				return err
			}
			zap.L().Info("variant report written", zap.String("path", cfg.Variant.ReportPath))
		}

		zap.L().Info("variant detection saved",
			zap.String("path", out),
			zap.Int("groups", len(groups)),
		)
		return nil
	},
}

func init() {
	variantsCmd.Flags().StringVar(&variantsInput, "input", "", "catalog file, .xlsx or .csv (required)")
	variantsCmd.Flags().StringVar(&variantsOutput, "output", "", "output path (default: overwrite input)")
	_ = variantsCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(variantsCmd)
}
