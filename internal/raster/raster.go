// Package raster renders PDFs to per-page PNG images with pdftoppm.
package raster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/metrics"
)

// DefaultDPI is the render resolution when none is configured.
const DefaultDPI = 300

// ErrToolMissing is returned when the rasterizer binary cannot be found.
var ErrToolMissing = errors.New("pdftoppm not found; install poppler-utils")

// Config controls a rasterization run.
type Config struct {
	InputDir  string
	OutputDir string
	DPI       int
	// Limit processes only the first N PDFs; zero means all.
	Limit int
	// Binary defaults to "pdftoppm".
	Binary string
}

// CommandRunner executes an external program.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	LookPath(name string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Summary counts outcomes for a run.
type Summary struct {
	Rasterized int
	Skipped    int
	Failed     int
	Pages      int
}

// Rasterizer converts PDFs into <OutputDir>/<stem>/page_NNN.png.
type Rasterizer struct {
	cfg    Config
	runner CommandRunner
	logger *zap.Logger
}

// New builds a Rasterizer. runner may be nil to use os/exec.
func New(cfg Config, runner CommandRunner, logger *zap.Logger) (*Rasterizer, error) {
	if cfg.InputDir == "" || cfg.OutputDir == "" {
		return nil, errors.New("input and output dirs are required")
	}
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.Binary == "" {
		cfg.Binary = "pdftoppm"
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rasterizer{cfg: cfg, runner: runner, logger: logger.Named("raster")}, nil
}

// Run rasterizes every *.pdf in the input dir. Per-file failures are logged
// and counted; a missing binary aborts before any work.
func (r *Rasterizer) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	bin, err := r.runner.LookPath(r.cfg.Binary)
	if err != nil {
		return sum, fmt.Errorf("%w (%s)", ErrToolMissing, r.cfg.Binary)
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return sum, fmt.Errorf("create output dir: %w", err)
	}
	files, err := listPDFs(r.cfg.InputDir)
	if err != nil {
		return sum, err
	}
	if r.cfg.Limit > 0 && len(files) > r.cfg.Limit {
		files = files[:r.cfg.Limit]
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		pages, skipped, err := r.rasterize(ctx, bin, filepath.Join(r.cfg.InputDir, name))
		switch {
		case err != nil:
			sum.Failed++
			r.logger.Error("rasterize failed", zap.String("file", name), zap.Error(err))
		case skipped:
			sum.Skipped++
			r.logger.Info("images already exist, skipping", zap.String("file", name))
		default:
			sum.Rasterized++
			sum.Pages += pages
			metrics.ObservePages("raster", pages)
			r.logger.Info("rasterized", zap.String("file", name), zap.Int("pages", pages))
		}
	}
	return sum, nil
}

func (r *Rasterizer) rasterize(ctx context.Context, bin, pdfPath string) (int, bool, error) {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	outDir := filepath.Join(r.cfg.OutputDir, stem)
	existing, err := filepath.Glob(filepath.Join(outDir, "*.png"))
	if err != nil {
		return 0, false, err
	}
	if len(existing) > 0 {
		return 0, true, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, false, fmt.Errorf("create image dir: %w", err)
	}
	args := []string{"-png", "-r", strconv.Itoa(r.cfg.DPI), pdfPath, filepath.Join(outDir, "page")}
	if err := r.runner.Run(ctx, bin, args...); err != nil {
		return 0, false, fmt.Errorf("pdftoppm: %w", err)
	}
	n, err := renamePages(outDir)
	if err != nil {
		return 0, false, err
	}
	return n, false, nil
}

// renamePages turns pdftoppm's page-1.png, page-2.png, ... (possibly zero
// padded) into page_000.png, page_001.png, ... in page order.
func renamePages(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return 0, err
	}
	type page struct {
		path string
		num  int
	}
	pages := make([]page, 0, len(matches))
	for _, m := range matches {
		digits := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "page-"), ".png")
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		pages = append(pages, page{path: m, num: n})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })
	for i, p := range pages {
		dest := filepath.Join(dir, fmt.Sprintf("page_%03d.png", i))
		if err := os.Rename(p.path, dest); err != nil {
			return i, fmt.Errorf("rename %s: %w", filepath.Base(p.path), err)
		}
	}
	return len(pages), nil
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
