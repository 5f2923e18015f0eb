package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

var seedFile string

type seedDoc struct {
	AnalysisTypes []seedType `yaml:"analysis_types"`
}

type seedType struct {
	TypeID       string         `yaml:"type_id"`
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	SystemPrompt string         `yaml:"system_prompt"`
	IsActive     *bool          `yaml:"is_active"`
	Metadata     map[string]any `yaml:"metadata"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed or update analysis types from a YAML file",
	Long:  "Upserts analysis-type definitions. New types start at version 1; updating an existing type bumps its version.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(seedFile)
		if err != nil {
			return eris.Wrapf(err, "seed: read %s", seedFile)
		}

		var doc seedDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return eris.Wrapf(err, "seed: parse %s", seedFile)
		}
		if len(doc.AnalysisTypes) == 0 {
			return eris.Errorf("seed: no analysis_types in %s", seedFile)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		for _, t := range doc.AnalysisTypes {
			if t.TypeID == "" || t.Name == "" || t.SystemPrompt == "" {
				return eris.Errorf("seed: type_id, name, and system_prompt are required (got type_id=%q)", t.TypeID)
			}

			active := true
			if t.IsActive != nil {
				active = *t.IsActive
			}

			err := st.UpsertAnalysisType(ctx, model.AnalysisType{
				TypeID:       t.TypeID,
				Name:         t.Name,
				Description:  t.Description,
				SystemPrompt: t.SystemPrompt,
				IsActive:     active,
				Metadata:     t.Metadata,
			})
			if err != nil {
				return err
			}
			zap.L().Info("seed: upserted analysis type", zap.String("type_id", t.TypeID))
		}

		zap.L().Info("seed: complete", zap.Int("types", len(doc.AnalysisTypes)))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "analysis_types.yaml", "YAML file with analysis type definitions")
	rootCmd.AddCommand(seedCmd)
}
