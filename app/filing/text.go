package filing

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var secBaseURL, _ = url.Parse("https://www.sec.gov/")

// TextExtractor turns filing text, which may be an HTML fragment,
// into case-folded plain text suitable for keyword matching.
type TextExtractor struct {
	folder cases.Caser
}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{folder: cases.Fold()}
}

func (e *TextExtractor) Run(raw string) string {
	text := raw
	if looksLikeHTML(raw) {
		article, err := readability.FromReader(strings.NewReader(raw), secBaseURL)
		if err != nil {
			slog.Debug("Failed to extract text from HTML, matching raw text", "error", err)
		} else if article.TextContent != "" {
			text = article.TextContent
		}
	}

	text = e.folder.String(norm.NFKC.String(text))
	return strings.Join(strings.Fields(text), " ")
}

func looksLikeHTML(s string) bool {
	open := strings.Index(s, "<")
	return open >= 0 && strings.Contains(s[open:], ">")
}
