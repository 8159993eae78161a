// Package extract reads the embedded text layer of PDF statements.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/dvloznov/statement-pipeline/internal/logger"
)

// PageSeparator joins page texts in Result.Text.
const PageSeparator = "\f"

const defaultMinChars = 50

// Result is the text layer of a document.
type Result struct {
	Text      string
	Pages     []string
	PageCount int
}

// PDFTextExtractor pulls text straight out of a PDF without OCR.
type PDFTextExtractor struct {
	// MinChars is the least amount of non-space text worth parsing.
	MinChars int
}

func NewPDFTextExtractor(minChars int) *PDFTextExtractor {
	if minChars <= 0 {
		minChars = defaultMinChars
	}
	return &PDFTextExtractor{MinChars: minChars}
}

// Extract returns nil, nil when the document has no usable text layer: an
// image, a scanned PDF, or a PDF whose fonts decode to garbage. Only bytes
// that cannot be opened at all produce an error.
func (e *PDFTextExtractor) Extract(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mt := DetectMimeType(data, mimeType)
	switch {
	case IsImage(mt):
		return nil, nil
	case mt != MimePDF:
		return nil, &DocumentUnreadableError{MimeType: mt, Err: fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mt)}
	}

	r, err := openPDF(data)
	if err != nil {
		return nil, &DocumentUnreadableError{MimeType: mt, Err: err}
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, &DocumentUnreadableError{MimeType: mt, Err: fmt.Errorf("PDF has no pages")}
	}

	log := logger.FromContext(ctx)
	methods := []struct {
		name string
		fn   func(*pdf.Reader, int) []string
	}{
		{"rows", extractByRow},
		{"content", extractByContent},
		{"plain_text", extractByPagePlainText},
	}
	for _, m := range methods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages, err := safely(func() []string { return m.fn(r, numPages) })
		if err != nil {
			log.Debug().Err(err).Str("method", m.name).Msg("PDF text method failed")
			continue
		}
		if e.readable(pages) {
			return &Result{
				Text:      strings.Join(pages, PageSeparator),
				Pages:     pages,
				PageCount: numPages,
			}, nil
		}
	}
	return nil, nil
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("PDF library crashed: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func safely(fn func() []string) (pages []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("PDF library crashed: %v", rec)
		}
	}()
	return fn(), nil
}

func extractByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractByContent rebuilds rows from glyph coordinates. PDF y grows upwards.
func extractByContent(r *pdf.Reader, numPages int) []string {
	type item struct {
		x float64
		s string
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()

		byY := make(map[int][]item)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			byY[y] = append(byY[y], item{x: t.X, s: t.S})
		}
		ys := make([]int, 0, len(byY))
		for y := range byY {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			items := byY[y]
			sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })

			var sb strings.Builder
			var prevX float64
			for j, it := range items {
				if j > 0 && it.x-prevX > 15 {
					sb.WriteString("  ")
				}
				sb.WriteString(it.s)
				prevX = it.x
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func extractByPagePlainText(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			f := page.Font(name)
			fonts[name] = &f
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages
}

// commonWords appear in virtually every bank statement.
var commonWords = []string{
	"bank", "account", "balance", "date", "payment", "statement",
	"total", "amount", "credit", "debit", "transaction", "sort code",
	"money", "paid", "opening", "closing", "transfer", "direct",
	"number", "page", "period",
}

// readable rejects empty layers and identity-encoded font garbage.
func (e *PDFTextExtractor) readable(pages []string) bool {
	total, good, chars := 0, 0, 0
	for _, p := range pages {
		for _, r := range p {
			total++
			if !unicode.IsSpace(r) {
				chars++
			}
			if readableRune(r) {
				good++
			}
		}
	}
	if chars < e.MinChars || total == 0 {
		return false
	}
	if float64(good)/float64(total) <= 0.6 {
		return false
	}

	combined := strings.ToLower(strings.Join(pages, " "))
	for _, w := range commonWords {
		if strings.Contains(combined, w) {
			return true
		}
	}
	return false
}

func readableRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(".,-/:;()'\"£$€%&@#!?+=*", r)
}
