package tesseract

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

	"github.com/dvloznov/statement-pipeline/internal/ocr"
)

// ErrRasterizerMissing means pdftoppm (poppler-utils) is not installed.
var ErrRasterizerMissing = errors.New("pdftoppm not available (install poppler-utils)")

// Rasterizer renders each PDF page to a PNG.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte, dpi int) ([][]byte, error)
}

// Pdftoppm shells out to poppler's pdftoppm.
type Pdftoppm struct {
	// Binary defaults to "pdftoppm" on PATH.
	Binary string
}

func (p *Pdftoppm) Rasterize(ctx context.Context, pdf []byte, dpi int) ([][]byte, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftoppm"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterizerMissing, err)
	}

	dir, err := os.MkdirTemp("", "ocr-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write temp PDF: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, bin, "-r", strconv.Itoa(dpi), "-png", in, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read temp dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".png") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(files)

	pages := make([][]byte, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read page image: %w", err)
		}
		pages = append(pages, b)
	}
	return pages, nil
}

func rasterizeKind(err error) ocr.Kind {
	if errors.Is(err, ErrRasterizerMissing) {
		return ocr.KindUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ocr.KindTimeout
	}
	return ocr.KindFailed
}
