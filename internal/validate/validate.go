// Package validate checks downloaded PDFs, quarantines corrupt ones and
// writes a CSV report.
package validate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/metrics"
)

// Status values written to the report.
const (
	StatusOK      = "ok"
	StatusCorrupt = "corrupt"
	StatusWarning = "warning"
)

// Config locates the input, quarantine and report.
type Config struct {
	InputDir      string
	QuarantineDir string
	ReportPath    string
}

// Result is one report row.
type Result struct {
	Filename string
	Status   string
	Message  string
}

// Report is the outcome of a run.
type Report struct {
	Results []Result
}

// Corrupt returns the number of quarantined files.
func (r Report) Corrupt() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusCorrupt {
			n++
		}
	}
	return n
}

// Validator runs checkers in order; the first one that can run decides.
type Validator struct {
	cfg      Config
	checkers []Checker
	logger   *zap.Logger
}

// New builds a Validator. With no checkers it uses qpdf, then the Go parser.
func New(cfg Config, logger *zap.Logger, checkers ...Checker) (*Validator, error) {
	if cfg.InputDir == "" {
		return nil, errors.New("input dir is required")
	}
	if cfg.QuarantineDir == "" {
		cfg.QuarantineDir = filepath.Join(cfg.InputDir, "quarantine")
	}
	if cfg.ReportPath == "" {
		return nil, errors.New("report path is required")
	}
	if len(checkers) == 0 {
		checkers = []Checker{QPDF{}, Parser{}}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{cfg: cfg, checkers: checkers, logger: logger.Named("validate")}, nil
}

// Run validates every *.pdf directly inside the input dir, in name order.
func (v *Validator) Run(ctx context.Context) (Report, error) {
	if err := os.MkdirAll(v.cfg.QuarantineDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create quarantine dir: %w", err)
	}
	files, err := listPDFs(v.cfg.InputDir)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(v.cfg.InputDir, name)
		res := v.check(ctx, name, path)
		if res.Status == StatusCorrupt {
			dest, err := moveFile(path, v.cfg.QuarantineDir)
			if err != nil {
				return report, fmt.Errorf("quarantine %s: %w", name, err)
			}
			res.Message += "; moved to " + dest
		}
		metrics.ObserveValidation(res.Status)
		v.logger.Info("validated",
			zap.String("file", res.Filename),
			zap.String("status", res.Status),
			zap.String("message", res.Message))
		report.Results = append(report.Results, res)
	}

	if err := WriteReport(v.cfg.ReportPath, report.Results); err != nil {
		return report, err
	}
	return report, nil
}

func (v *Validator) check(ctx context.Context, name, path string) Result {
	for _, c := range v.checkers {
		verdict, msg := c.Check(ctx, path)
		switch verdict {
		case Valid:
			return Result{Filename: name, Status: StatusOK, Message: msg}
		case Invalid:
			return Result{Filename: name, Status: StatusCorrupt, Message: c.Name() + ": " + msg}
		case Suspect:
			return Result{Filename: name, Status: StatusWarning, Message: c.Name() + ": " + msg}
		}
	}
	return Result{Filename: name, Status: StatusWarning, Message: "no validator available"}
}

// WriteReport writes results as CSV with a filename,status,message header.
func WriteReport(path string, results []Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	w := csv.NewWriter(f)
	rows := make([][]string, 0, len(results)+1)
	rows = append(rows, []string{"filename", "status", "message"})
	for _, r := range results {
		rows = append(rows, []string{r.Filename, r.Status, r.Message})
	}
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
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

// moveFile moves src into dir, adding a numeric suffix if the name is taken.
func moveFile(src, dir string) (string, error) {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dest := filepath.Join(dir, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
	if err := os.Rename(src, dest); err == nil {
		return dest, nil
	}
	if err := copyFile(src, dest); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("remove original: %w", err)
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}
