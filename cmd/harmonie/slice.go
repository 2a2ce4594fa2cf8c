package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sensingclues/harmonie-grib/internal/domain"
	"github.com/sensingclues/harmonie-grib/internal/observability"
	"github.com/sensingclues/harmonie-grib/internal/pipeline"
)

var sliceCmd = &cobra.Command{
	Use:   "slice <stream> <region> <dst>",
	Short: "Crop a merged stream to one region and publish it",
	Long: `Crops an already merged stream file to a named region from the registry,
compresses the crop and publishes it at dst.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, regionName, dst := args[0], args[1], args[2]

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		region, ok := domain.FindRegion(cfg.Regions, regionName)
		if !ok {
			return fmt.Errorf("unknown region %q", regionName)
		}

		metrics := observability.NewMetrics()
		cropper, compressor, err := newTools(cfg, logger, metrics)
		if err != nil {
			return err
		}
		if cropper == nil {
			return fmt.Errorf("crop tool %q unavailable", cfg.CropTool)
		}

		publisher := pipeline.NewPublisher(compressor, logger, metrics)
		slicer := pipeline.NewSlicer(cropper, publisher, filepath.Join(cfg.WorkDir, pipeline.CropScratchFile), logger, metrics)

		cropped, err := slicer.Slice(cmd.Context(), src, region)
		if err != nil {
			return err
		}
		a, err := publisher.Publish(cmd.Context(), cropped, dst)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", a.Path, a.Size)
		return nil
	},
}
