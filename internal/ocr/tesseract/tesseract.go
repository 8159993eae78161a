// Package tesseract is the classical OCR fallback, backed by libtesseract
// through gosseract.
package tesseract

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/extract"
	"github.com/dvloznov/statement-pipeline/internal/ocr"
)

const ProviderName = "tesseract"

// Client is the subset of *gosseract.Client used here.
type Client interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	SetVariable(key gosseract.SettableVariable, value string) error
	Text() (string, error)
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

type Config struct {
	Enabled   bool
	Languages []string
	DPI       int
	// Workers bounds how many pages are recognised at once.
	Workers int
}

// Engine implements ocr.Provider.
type Engine struct {
	cfg           Config
	clientFactory func() Client
	rasterizer    Rasterizer
}

func New(cfg Config) *Engine {
	return NewWithClient(cfg, func() Client { return gosseract.NewClient() }, &Pdftoppm{})
}

// NewWithClient swaps the tesseract client and the PDF rasterizer.
func NewWithClient(cfg Config, factory func() Client, r Rasterizer) *Engine {
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{cfg: cfg, clientFactory: factory, rasterizer: r}
}

func (e *Engine) Name() string { return ProviderName }

func (e *Engine) Configured() bool {
	return e.cfg.Enabled && len(e.cfg.Languages) > 0
}

type word struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

type pageResult struct {
	Page  int    `json:"page"`
	Text  string `json:"-"`
	Words []word `json:"words"`
}

func (e *Engine) Transcribe(ctx context.Context, data []byte, mimeType string) (*ocr.Result, error) {
	mt := extract.DetectMimeType(data, mimeType)

	var images [][]byte
	switch {
	case extract.IsImage(mt):
		images = [][]byte{data}
	case mt == extract.MimePDF:
		pages, err := e.rasterizer.Rasterize(ctx, data, e.cfg.DPI)
		if err != nil {
			return nil, ocr.NewProviderError(ProviderName, rasterizeKind(err), fmt.Errorf("rasterize PDF: %w", err))
		}
		images = pages
	default:
		return nil, ocr.NewProviderError(ProviderName, ocr.KindFailed, fmt.Errorf("unsupported mime type %q", mt))
	}
	if len(images) == 0 {
		return nil, ocr.NewProviderError(ProviderName, ocr.KindFailed, fmt.Errorf("document has no pages"))
	}

	results := make([]pageResult, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pr, err := e.recognize(img)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			pr.Page = i + 1
			results[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ocr.NewProviderError(ProviderName, ocr.KindTimeout, ctx.Err())
		}
		return nil, ocr.NewProviderError(ProviderName, ocr.KindFailed, err)
	}

	return buildResult(results), nil
}

func (e *Engine) recognize(img []byte) (pageResult, error) {
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(img); err != nil {
		return pageResult{}, fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(e.cfg.Languages...); err != nil {
		return pageResult{}, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.cfg.DPI)); err != nil {
		return pageResult{}, fmt.Errorf("set dpi: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return pageResult{}, fmt.Errorf("recognize text: %w", err)
	}

	pr := pageResult{Text: strings.TrimSpace(text)}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil {
		for _, b := range boxes {
			pr.Words = append(pr.Words, word{Text: b.Word, Confidence: b.Confidence / 100.0, Box: b.Box})
		}
	}
	return pr, nil
}

func buildResult(pages []pageResult) *ocr.Result {
	res := &ocr.Result{Provider: ProviderName}

	texts := make([]string, 0, len(pages))
	var sum float64
	var n int
	for _, p := range pages {
		texts = append(texts, p.Text)
		for _, l := range strings.Split(p.Text, "\n") {
			if strings.TrimSpace(l) != "" {
				res.Lines = append(res.Lines, ocr.LineHypothesis{Text: l, Page: p.Page})
			}
		}
		for _, w := range p.Words {
			sum += w.Confidence
			n++
		}
	}
	res.Text = strings.Join(texts, extract.PageSeparator)
	if n > 0 {
		c := sum / float64(n)
		res.Confidence = &c
	}

	if payload, err := json.Marshal(pages); err == nil {
		res.Raw = &domain.ProviderOutput{Kind: domain.OutputTesseractBoxes, Payload: payload}
	}
	return res
}
