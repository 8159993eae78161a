package extract

import (
	"bytes"
	"net/http"
	"strings"
)

const MimePDF = "application/pdf"

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/tiff": true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// IsImage reports whether mimeType is a raster image we can hand to OCR.
func IsImage(mimeType string) bool {
	return imageTypes[NormalizeMimeType(mimeType)]
}

// NormalizeMimeType lowercases and drops parameters such as charset.
func NormalizeMimeType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// DetectMimeType resolves the declared type, sniffing the bytes when the
// declaration is missing or generic.
func DetectMimeType(data []byte, declared string) string {
	mt := NormalizeMimeType(declared)
	if mt == MimePDF || imageTypes[mt] {
		return mt
	}

	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return "image/tiff"
	}
	return NormalizeMimeType(http.DetectContentType(data))
}
