package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/formharvest/internal/config"
	"github.com/JakeFAU/formharvest/internal/harvest"
)

type harvestOptions struct {
	smart  bool
	limit  int
	minio  minioFlags
	topics []string
}

type minioFlags struct {
	endpoint string
	access   string
	secret   string
	bucket   string
	secure   bool
}

func newHarvestCmd(c *cli) *cobra.Command {
	opts := &harvestOptions{}
	cmd := &cobra.Command{
		Use:   "harvest [query]",
		Short: "Search for PDF forms, download them and record them in the ledger",
		Long: `Runs one harvest. With a query, a single search is issued; with --smart the
configured topics are expanded into search queries first. Documents are stored
under the content-addressed root and recorded in the ledger. When MinIO flags
or an upload provider are configured, each stored file is also uploaded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = strings.TrimSpace(args[0])
			}
			if query == "" && !opts.smart {
				return errors.New("provide a search query or --smart")
			}
			if err := applyHarvestFlags(cmd, &c.cfg, opts); err != nil {
				return err
			}

			ctx := cmd.Context()
			pipeline, err := c.App().Pipeline(ctx)
			if err != nil {
				return err
			}
			summary, err := pipeline.Run(ctx, harvest.Request{
				Query:  query,
				Smart:  opts.smart,
				Topics: c.cfg.Harvest.Topics,
				Limit:  c.cfg.Harvest.Limit,
			})
			printSummary(cmd, summary)
			if err != nil {
				return fmt.Errorf("harvest: %w", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.smart, "smart", false, "expand the configured topics into search queries")
	f.IntVar(&opts.limit, "limit", 0, "maximum number of candidate URLs (default from harvest.limit)")
	f.StringSliceVar(&opts.topics, "topic", nil, "topic to expand with --smart (repeatable; replaces the configured list)")
	f.StringVar(&opts.minio.endpoint, "minio-endpoint", "", "MinIO/S3 endpoint, host[:port]")
	f.StringVar(&opts.minio.access, "minio-access", "", "MinIO access key")
	f.StringVar(&opts.minio.secret, "minio-secret", "", "MinIO secret key")
	f.StringVar(&opts.minio.bucket, "minio-bucket", "", "bucket receiving uploaded PDFs")
	f.BoolVar(&opts.minio.secure, "minio-secure", false, "use TLS for the MinIO endpoint")
	return cmd
}

// applyHarvestFlags lets explicitly set flags override the loaded config.
// MinIO flags switch the upload provider to MinIO and must leave it complete.
func applyHarvestFlags(cmd *cobra.Command, cfg *config.Config, opts *harvestOptions) error {
	f := cmd.Flags()
	if f.Changed("limit") {
		cfg.Harvest.Limit = opts.limit
	}
	if f.Changed("topic") {
		cfg.Harvest.Topics = opts.topics
	}
	m := opts.minio
	if m.endpoint == "" && m.access == "" && m.secret == "" && m.bucket == "" {
		return nil
	}
	cfg.Upload.Provider = config.ProviderMinIO
	if m.endpoint != "" {
		cfg.Upload.MinIO.Endpoint = m.endpoint
	}
	if m.access != "" {
		cfg.Upload.MinIO.AccessKey = m.access
	}
	if m.secret != "" {
		cfg.Upload.MinIO.SecretKey = m.secret
	}
	if m.bucket != "" {
		cfg.Upload.Bucket = m.bucket
	}
	if f.Changed("minio-secure") {
		cfg.Upload.MinIO.Secure = m.secure
	}
	if missing := missingMinIOSettings(cfg.Upload); len(missing) > 0 {
		return fmt.Errorf("incomplete MinIO upload settings: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// missingMinIOSettings names the flags still needed after config and flags
// are merged.
func missingMinIOSettings(u config.UploadConfig) []string {
	var missing []string
	if u.MinIO.Endpoint == "" {
		missing = append(missing, "--minio-endpoint")
	}
	if u.MinIO.AccessKey == "" {
		missing = append(missing, "--minio-access")
	}
	if u.MinIO.SecretKey == "" {
		missing = append(missing, "--minio-secret")
	}
	if u.Bucket == "" {
		missing = append(missing, "--minio-bucket")
	}
	return missing
}

func printSummary(cmd *cobra.Command, s harvest.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d candidates, %d fetched (%d already on disk), %d failed\n",
		s.RunID, s.Candidates, s.Fetched, s.AlreadyOnDisk, s.Failed)
	fmt.Fprintf(out, "ledger: %d inserted, %d duplicates\n", s.Inserted, s.Duplicates)
	if s.Uploaded > 0 || s.UploadFailed > 0 {
		fmt.Fprintf(out, "uploads: %d ok, %d failed\n", s.Uploaded, s.UploadFailed)
	}
	if s.Published > 0 {
		fmt.Fprintf(out, "events published: %d\n", s.Published)
	}
}
