package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/formharvest/internal/harvest"
	hashsha256 "github.com/JakeFAU/formharvest/internal/hash/sha256"
)

func newLookupCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <sha256>",
		Short: "Print the ledger row for a content hash as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest := strings.ToLower(strings.TrimSpace(args[0]))
			if !hashsha256.Valid(digest) {
				return fmt.Errorf("%q is not a SHA-256 hex digest", args[0])
			}
			ledger, err := c.App().Ledger(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := ledger.FindByHash(cmd.Context(), digest)
			if errors.Is(err, harvest.ErrNotFound) {
				return fmt.Errorf("no document with sha256 %s", digest)
			}
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
}
