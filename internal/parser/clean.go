package parser

import (
	"regexp"
	"strings"
)

var (
	// OCR engines often read the decimal point of an amount as ; or :.
	ocrSemicolonDecimal = regexp.MustCompile(`(\d);\s?(\d{2})\b`)
	ocrColonDecimal     = regexp.MustCompile(`(\d,\d{3}):(\d{2})\b`)
	ocrTrailingColon    = regexp.MustCompile(`(\d\.\d{2}):(\s|$)`)
	ocrTrailingNA       = regexp.MustCompile(`\s+NA$`)

	lineReplacer = strings.NewReplacer(
		" ", " ",
		"\t", " ",
		"→", " ",
		"|", " ",
		"−", "-",
		"–", "-",
	)
)

// cleanLine normalises one raw text line: separators to spaces, common OCR
// misreads in amounts fixed, whitespace collapsed.
func cleanLine(line string) string {
	line = lineReplacer.Replace(line)
	line = ocrSemicolonDecimal.ReplaceAllString(line, "$1.$2")
	line = ocrColonDecimal.ReplaceAllString(line, "$1.$2")
	line = ocrTrailingColon.ReplaceAllString(line, "$1$2")
	line = strings.Join(strings.Fields(line), " ")
	line = ocrTrailingNA.ReplaceAllString(line, "")
	return line
}

// splitPages breaks raw text on form feeds.
func splitPages(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.Split(raw, "\f")
}
