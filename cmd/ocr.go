package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOCRCmd(c *cli) *cobra.Command {
	var (
		inputDir, outputDir, labelFile string
		limit                          int
	)
	cmd := &cobra.Command{
		Use:   "ocr",
		Short: "Run OCR over page images and export labeling tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			oc := &c.cfg.OCR
			f := cmd.Flags()
			if f.Changed("input-dir") {
				oc.InputDir = inputDir
			}
			if f.Changed("output-dir") {
				oc.OutputDir = outputDir
			}
			if f.Changed("labelstudio") {
				oc.LabelFile = labelFile
			}
			if f.Changed("limit") {
				oc.Limit = limit
			}

			runner, err := c.App().OCR(nil)
			if err != nil {
				return err
			}
			sum, err := runner.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("ocr: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ocr: %d documents, %d pages, %d failed; tasks written to %s\n",
				sum.Documents, sum.Pages, sum.Failed, oc.LabelFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "root of per-document image directories (default ocr.input_dir)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "root for per-page token JSON (default ocr.output_dir)")
	cmd.Flags().StringVar(&labelFile, "labelstudio", "", "labeling task JSONL path (default ocr.label_file)")
	cmd.Flags().IntVar(&limit, "limit", 0, "process only the first N documents")
	return cmd
}
