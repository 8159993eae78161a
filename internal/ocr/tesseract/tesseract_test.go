package tesseract

import (
	"context"
	"errors"
	"image"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/otiai10/gosseract/v2"

	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/ocr"
)

// MockClient returns the text registered for the image bytes it was given.
type MockClient struct {
	pages  map[string]string
	image  string
	langs  []string
	closed bool
}

func (m *MockClient) SetImageFromBytes(data []byte) error {
	m.image = string(data)
	return nil
}

func (m *MockClient) SetLanguage(langs ...string) error {
	m.langs = langs
	return nil
}

func (m *MockClient) SetVariable(gosseract.SettableVariable, string) error { return nil }

func (m *MockClient) Text() (string, error) {
	text, ok := m.pages[m.image]
	if !ok {
		return "", errors.New("unreadable image")
	}
	return text, nil
}

func (m *MockClient) GetBoundingBoxes(gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error) {
	var out []gosseract.BoundingBox
	for _, w := range strings.Fields(m.pages[m.image]) {
		out = append(out, gosseract.BoundingBox{Word: w, Confidence: 80, Box: image.Rect(0, 0, 10, 10)})
	}
	return out, nil
}

func (m *MockClient) Close() error {
	m.closed = true
	return nil
}

type MockRasterizer struct {
	RasterizeFunc func(ctx context.Context, pdf []byte, dpi int) ([][]byte, error)
}

func (m *MockRasterizer) Rasterize(ctx context.Context, pdf []byte, dpi int) ([][]byte, error) {
	return m.RasterizeFunc(ctx, pdf, dpi)
}

func newEngine(pages map[string]string, r Rasterizer) (*Engine, *[]*MockClient) {
	var mu sync.Mutex
	var clients []*MockClient
	factory := func() Client {
		mu.Lock()
		defer mu.Unlock()
		c := &MockClient{pages: pages}
		clients = append(clients, c)
		return c
	}
	return NewWithClient(Config{Enabled: true, Languages: []string{"eng"}, Workers: 2}, factory, r), &clients
}

func TestTranscribe_Image(t *testing.T) {
	e, clients := newEngine(map[string]string{"png-bytes": "01 Mar TESCO 12.50\n02 Mar SHELL 40.00"}, nil)

	res, err := e.Transcribe(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Provider != ProviderName || len(res.Lines) != 2 {
		t.Errorf("got provider %s with %d lines", res.Provider, len(res.Lines))
	}
	if res.Confidence == nil || math.Abs(*res.Confidence-0.8) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.8", res.Confidence)
	}
	if res.Raw == nil || res.Raw.Kind != domain.OutputTesseractBoxes {
		t.Errorf("Raw = %+v", res.Raw)
	}
	for _, c := range *clients {
		if !c.closed {
			t.Error("client not closed")
		}
	}
}

func TestTranscribe_PDFPagesKeepOrder(t *testing.T) {
	pages := map[string]string{"p1": "page one", "p2": "page two", "p3": "page three"}
	r := &MockRasterizer{RasterizeFunc: func(_ context.Context, _ []byte, dpi int) ([][]byte, error) {
		if dpi != 300 {
			t.Errorf("dpi = %d, want default 300", dpi)
		}
		return [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")}, nil
	}}
	e, _ := newEngine(pages, r)

	res, err := e.Transcribe(context.Background(), []byte("%PDF-1.4\n"), "application/pdf")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if want := "page one\fpage two\fpage three"; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if res.Lines[2].Page != 3 {
		t.Errorf("third line page = %d", res.Lines[2].Page)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	tests := []struct {
		name string
		r    Rasterizer
		data string
		mime string
		kind ocr.Kind
	}{
		{
			name: "rasterizer missing",
			r: &MockRasterizer{RasterizeFunc: func(context.Context, []byte, int) ([][]byte, error) {
				return nil, ErrRasterizerMissing
			}},
			data: "%PDF-1.4\n",
			mime: "application/pdf",
			kind: ocr.KindUnavailable,
		},
		{
			name: "unreadable page",
			data: "garbage",
			mime: "image/png",
			kind: ocr.KindFailed,
		},
		{
			name: "unsupported type",
			data: "PK\x03\x04",
			mime: "application/zip",
			kind: ocr.KindFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(map[string]string{}, tt.r)
			_, err := e.Transcribe(context.Background(), []byte(tt.data), tt.mime)
			var pe *ocr.ProviderError
			if !errors.As(err, &pe) || pe.Kind != tt.kind {
				t.Errorf("err = %v, want provider error of kind %s", err, tt.kind)
			}
		})
	}
}

func TestConfigured(t *testing.T) {
	if New(Config{Enabled: false, Languages: []string{"eng"}}).Configured() {
		t.Error("disabled engine reported configured")
	}
	if New(Config{Enabled: true}).Configured() {
		t.Error("engine without languages reported configured")
	}
	if !New(Config{Enabled: true, Languages: []string{"eng"}}).Configured() {
		t.Error("enabled engine reported unconfigured")
	}
}
