// Package ocr runs word-level OCR over rasterized pages and exports the
// tokens as per-page JSON plus a labeling-tool import file.
package ocr

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/metrics"
)

// Token is one recognized word. BBox is [x0, y0, x1, y1] in pixels and Conf
// is in [0, 1].
type Token struct {
	Text string     `json:"text"`
	BBox [4]float64 `json:"bbox"`
	Conf float64    `json:"conf"`
}

// Page is the per-image output file.
type Page struct {
	Image  string  `json:"image"`
	Tokens []Token `json:"tokens"`
}

// Task is one line of the labeling import file.
type Task struct {
	Data TaskData `json:"data"`
	Meta TaskMeta `json:"meta"`
}

// TaskData points the labeling tool at the image.
type TaskData struct {
	Image string `json:"image"`
}

// TaskMeta carries the OCR tokens alongside the task.
type TaskMeta struct {
	OCRTokens []Token `json:"ocr_tokens"`
}

// Engine recognizes words in an image file.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, imagePath string) ([]Token, error)
}

// Config controls an OCR run.
type Config struct {
	InputDir  string
	OutputDir string
	LabelFile string
	// Limit processes only the first N image directories; zero means all.
	Limit int
}

// Summary counts outcomes for a run.
type Summary struct {
	Documents int
	Pages     int
	Failed    int
}

// Runner walks <InputDir>/<doc>/*.png and writes <OutputDir>/<doc>/page_NNN.json.
type Runner struct {
	cfg    Config
	engine Engine
	logger *zap.Logger
}

// New builds a Runner.
func New(cfg Config, engine Engine, logger *zap.Logger) (*Runner, error) {
	if engine == nil {
		return nil, errors.New("ocr engine is required")
	}
	if cfg.InputDir == "" || cfg.OutputDir == "" || cfg.LabelFile == "" {
		return nil, errors.New("input dir, output dir and label file are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, engine: engine, logger: logger.Named("ocr")}, nil
}

// Run processes every image directory, then writes all tasks to the label file.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return sum, fmt.Errorf("create output dir: %w", err)
	}
	dirs, err := listDirs(r.cfg.InputDir)
	if err != nil {
		return sum, err
	}
	if r.cfg.Limit > 0 && len(dirs) > r.cfg.Limit {
		dirs = dirs[:r.cfg.Limit]
	}

	var tasks []Task
	for _, doc := range dirs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		docTasks, failed, err := r.processDir(ctx, doc)
		if err != nil {
			return sum, err
		}
		sum.Documents++
		sum.Pages += len(docTasks)
		sum.Failed += failed
		tasks = append(tasks, docTasks...)
	}
	metrics.ObservePages("ocr", sum.Pages)

	if err := WriteTasks(r.cfg.LabelFile, tasks); err != nil {
		return sum, err
	}
	r.logger.Info("wrote labeling tasks", zap.Int("tasks", len(tasks)), zap.String("path", r.cfg.LabelFile))
	return sum, nil
}

func (r *Runner) processDir(ctx context.Context, doc string) ([]Task, int, error) {
	images, err := filepath.Glob(filepath.Join(r.cfg.InputDir, doc, "*.png"))
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(images)
	outDir := filepath.Join(r.cfg.OutputDir, doc)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, 0, fmt.Errorf("create %s: %w", outDir, err)
	}

	var (
		tasks  []Task
		failed int
	)
	for i, img := range images {
		tokens, err := r.engine.Recognize(ctx, img)
		if err != nil {
			failed++
			r.logger.Warn("ocr failed", zap.String("image", img), zap.String("engine", r.engine.Name()), zap.Error(err))
			continue
		}
		if tokens == nil {
			tokens = []Token{}
		}
		page := Page{Image: img, Tokens: tokens}
		if err := writeJSON(filepath.Join(outDir, fmt.Sprintf("page_%03d.json", i)), page); err != nil {
			return nil, failed, err
		}
		tasks = append(tasks, Task{Data: TaskData{Image: img}, Meta: TaskMeta{OCRTokens: tokens}})
	}
	return tasks, failed, nil
}

// WriteTasks writes tasks as JSON lines, replacing path.
func WriteTasks(path string, tasks []Task) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create label dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create label file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, t := range tasks {
		if err := enc.Encode(t); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode task: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush label file: %w", err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func listDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
