package validation

import (
	"html"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultExportName is used when a requested file name sanitizes to nothing.
const DefaultExportName = "processed_trade_data"

const maxExportNameRunes = 100

var strictHTMLPolicy = bluemonday.StrictPolicy()

// SanitizeText removes all HTML tags and attributes from s. The result is
// plain text; entities bluemonday escapes are decoded again.
func SanitizeText(s string) string {
	return html.UnescapeString(strictHTMLPolicy.Sanitize(s))
}

// SanitizeForFormulaInjection prefixes a single quote when the trimmed
// value starts with a character spreadsheets treat as a formula.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	switch trimmed[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// StripUnprintable removes non-printable characters, keeping tab, newline
// and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// ExportFilename turns a user-supplied name into a safe download name with
// the .csv extension.
func ExportFilename(raw string) string {
	name := SanitizeText(raw)
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".csv") {
		name = strings.TrimSuffix(name, ext)
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		case unicode.IsSpace(r):
			return '_'
		case !unicode.IsPrint(r):
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, "._")

	if runes := []rune(name); len(runes) > maxExportNameRunes {
		name = string(runes[:maxExportNameRunes])
	}
	if name == "" {
		name = DefaultExportName
	}
	return name + ".csv"
}
