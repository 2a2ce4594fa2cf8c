package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Print the region registry",
	Long: `Prints the regions slices are cut for, in slicing order, in the same
YAML form REGIONS_FILE accepts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(struct {
			Regions []domain.Region `yaml:"regions"`
		}{cfg.Regions}); err != nil {
			return err
		}
		return enc.Close()
	},
}
