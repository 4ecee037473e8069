// Package cmd defines the formharvest CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/app"
	"github.com/JakeFAU/formharvest/internal/config"
	"github.com/JakeFAU/formharvest/internal/logging"
)

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// cli is the state shared by the root command and its subcommands.
type cli struct {
	configPath string
	dev        bool

	cfg    config.Config
	logger *zap.Logger
	app    *app.App
}

// App builds the service container from the (flag-adjusted) config on first use.
func (c *cli) App() *app.App {
	if c.app == nil {
		c.app = app.New(c.cfg, c.logger)
	}
	return c.app
}

func (c *cli) close() {
	if c.app != nil {
		if err := c.app.Close(); err != nil && c.logger != nil {
			c.logger.Warn("close services", zap.Error(err))
		}
		c.app = nil
	}
}

func (c *cli) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.dev {
		cfg.Logging.Development = true
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formharvest",
		Short: "Harvest fillable PDF forms from the web",
		Long: `formharvest searches the web for PDF forms, downloads them concurrently
into a SHA-256 content-addressed directory and records their provenance in a
ledger. Auxiliary commands validate, rasterize and OCR the collection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.load()
		},
	}

	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&c.dev, "dev", false, "enable development logging")

	cmd.AddCommand(
		newHarvestCmd(c),
		newValidateCmd(c),
		newRasterizeCmd(c),
		newOCRCmd(c),
		newLookupCmd(c),
		newServeCmd(c),
	)
	return cmd
}

// run executes the CLI with args, writing command output to out, and returns
// the process exit code.
func run(ctx context.Context, args []string, out io.Writer) int {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	c.close()
	if err == nil {
		return 0
	}

	code := 1
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
	}
	if c.logger == nil {
		fmt.Fprintf(os.Stderr, "formharvest: %v\n", err)
		return code
	}
	c.logger.Error("command failed", zap.Error(err), zap.Int("exit_code", code))
	_ = c.logger.Sync()
	return code
}

// Execute runs the CLI and exits the process with the command's status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}
