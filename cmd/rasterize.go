package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRasterizeCmd(c *cli) *cobra.Command {
	var (
		inputDir, outputDir string
		dpi, limit          int
	)
	cmd := &cobra.Command{
		Use:   "rasterize",
		Short: "Render each PDF page to PNG with pdftoppm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc := &c.cfg.Raster
			f := cmd.Flags()
			if f.Changed("input-dir") {
				rc.InputDir = inputDir
			}
			if f.Changed("output-dir") {
				rc.OutputDir = outputDir
			}
			if f.Changed("dpi") {
				rc.DPI = dpi
			}
			if f.Changed("limit") {
				rc.Limit = limit
			}

			r, err := c.App().Rasterizer()
			if err != nil {
				return err
			}
			sum, err := r.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("rasterize: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rasterized %d PDFs (%d pages), %d skipped, %d failed\n",
				sum.Rasterized, sum.Pages, sum.Skipped, sum.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "directory of PDFs (default raster.input_dir)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "root directory for page images (default raster.output_dir)")
	cmd.Flags().IntVar(&dpi, "dpi", 300, "render resolution")
	cmd.Flags().IntVar(&limit, "limit", 0, "process only the first N PDFs")
	return cmd
}
