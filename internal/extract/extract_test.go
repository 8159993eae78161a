package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a single-page PDF whose content stream shows each line
// with Helvetica, computing xref offsets as it goes.
func buildPDF(lines []string) []byte {
	var stream strings.Builder
	if len(lines) > 0 {
		stream.WriteString("BT /F1 10 Tf\n")
		y := 760
		for _, l := range lines {
			fmt.Fprintf(&stream, "1 0 0 1 50 %d Tm (%s) Tj\n", y, l)
			y -= 14
		}
		stream.WriteString("ET\n")
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", stream.Len(), stream.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_TextLayer(t *testing.T) {
	data := buildPDF([]string{
		"Example Bank Statement",
		"Statement period 01 Mar 2024 to 31 Mar 2024",
		"02 Mar CARD PAYMENT TESCO 12.50 987.50",
		"05 Mar SALARY ACME LTD 2000.00 2987.50",
	})

	res, err := NewPDFTextExtractor(0).Extract(context.Background(), data, "application/pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res == nil {
		t.Fatal("expected text layer, got nil")
	}
	if res.PageCount != 1 {
		t.Errorf("PageCount = %d, want 1", res.PageCount)
	}
	if !strings.Contains(res.Text, "TESCO") {
		t.Errorf("Text missing transaction line: %q", res.Text)
	}
}

func TestExtract_NoUsableText(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		mimeType string
	}{
		{"empty page", buildPDF(nil), "application/pdf"},
		{"whitespace only", buildPDF([]string{"   ", " "}), "application/pdf"},
		{"too short", buildPDF([]string{"Page 1"}), "application/pdf"},
		{"png image", []byte("\x89PNG\r\n\x1a\n0000"), "image/png"},
		{"jpeg image", []byte{0xff, 0xd8, 0xff, 0xe0}, "image/jpeg"},
		{"sniffed image", []byte("\x89PNG\r\n\x1a\n0000"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewPDFTextExtractor(0).Extract(context.Background(), tt.data, tt.mimeType)
			if err != nil {
				t.Fatalf("Extract returned error %v, want nil", err)
			}
			if res != nil {
				t.Errorf("Extract = %+v, want nil", res)
			}
		})
	}
}

func TestExtract_Unreadable(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		mimeType string
	}{
		{"garbage pdf", []byte("this is definitely not a pdf file at all"), "application/pdf"},
		{"truncated pdf", buildPDF([]string{"Statement"})[:60], "application/pdf"},
		{"unknown type", []byte("PK\x03\x04zipdata"), "application/zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPDFTextExtractor(0).Extract(context.Background(), tt.data, tt.mimeType)
			if !errors.Is(err, ErrDocumentUnreadable) {
				t.Fatalf("err = %v, want ErrDocumentUnreadable", err)
			}
			var due *DocumentUnreadableError
			if !errors.As(err, &due) {
				t.Errorf("err is %T, want *DocumentUnreadableError", err)
			}
		})
	}
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewPDFTextExtractor(0).Extract(ctx, buildPDF(nil), "application/pdf"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
	}{
		{"declared pdf with params", nil, "Application/PDF; charset=binary", "application/pdf"},
		{"sniffed pdf", []byte("%PDF-1.4\n"), "", "application/pdf"},
		{"tiff little endian", []byte("II*\x00rest"), "application/octet-stream", "image/tiff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMimeType(tt.data, tt.declared); got != tt.want {
				t.Errorf("DetectMimeType = %q, want %q", got, tt.want)
			}
		})
	}
}
