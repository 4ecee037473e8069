package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Verdict is a checker's opinion about one file.
type Verdict int

const (
	// Unavailable means the checker could not run; the next one is tried.
	Unavailable Verdict = iota
	Valid
	Invalid
	Suspect
)

// Checker inspects a PDF on disk.
type Checker interface {
	Name() string
	Check(ctx context.Context, path string) (Verdict, string)
}

// QPDF shells out to `qpdf --check`.
type QPDF struct {
	// Binary defaults to "qpdf".
	Binary string
}

// Name implements Checker.
func (QPDF) Name() string { return "qpdf" }

// Check implements Checker. Any non-zero exit is treated as corruption.
func (q QPDF) Check(ctx context.Context, path string) (Verdict, string) {
	bin := q.Binary
	if bin == "" {
		bin = "qpdf"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--check", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return Valid, "qpdf ok"
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return Unavailable, "qpdf-not-available"
	}
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = strings.TrimSpace(stdout.String())
	}
	return Invalid, msg
}

// Parser opens the file with a pure-Go PDF reader and counts its pages.
type Parser struct{}

// Name implements Checker.
func (Parser) Name() string { return "pdf" }

// Check implements Checker.
func (Parser) Check(_ context.Context, path string) (verdict Verdict, msg string) {
	defer func() {
		if r := recover(); r != nil {
			verdict, msg = Invalid, fmt.Sprintf("parser panic: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return Invalid, err.Error()
	}
	defer func() { _ = f.Close() }()
	pages := r.NumPage()
	if pages == 0 {
		return Suspect, "no pages found"
	}
	return Valid, fmt.Sprintf("pdf ok (%d pages)", pages)
}
