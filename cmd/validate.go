package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// exitCorrupt is returned by validate when any file was quarantined.
const exitCorrupt = 2

func newValidateCmd(c *cli) *cobra.Command {
	var inputDir, quarantineDir, report string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check stored PDFs and quarantine corrupt ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vc := &c.cfg.Validation
			if cmd.Flags().Changed("input-dir") {
				vc.InputDir = inputDir
				if !cmd.Flags().Changed("quarantine-dir") {
					vc.QuarantineDir = ""
				}
			}
			if cmd.Flags().Changed("quarantine-dir") {
				vc.QuarantineDir = quarantineDir
			}
			if cmd.Flags().Changed("report") {
				vc.Report = report
			}

			validator, err := c.App().Validator()
			if err != nil {
				return err
			}
			res, err := validator.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			corrupt := res.Corrupt()
			fmt.Fprintf(cmd.OutOrStdout(), "validated %d files, %d corrupt; report written to %s\n",
				len(res.Results), corrupt, vc.Report)
			if corrupt > 0 {
				return &exitError{code: exitCorrupt, err: fmt.Errorf("%d corrupt PDF(s) quarantined", corrupt)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "directory of PDFs to check (default validate.input_dir)")
	cmd.Flags().StringVar(&quarantineDir, "quarantine-dir", "", "where corrupt PDFs are moved (default <input-dir>/quarantine)")
	cmd.Flags().StringVar(&report, "report", "", "CSV report path (default validate.report)")
	return cmd
}
