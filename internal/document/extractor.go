package document

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/bloodlens/internal/analysis"
)

const defaultMaxPages = 50

// ErrUnreadableDocument is returned when the input cannot be turned into text.
var ErrUnreadableDocument = analysis.NewKindError("unreadable document", analysis.KindUnreadableDocument)

// Extractor turns raw document bytes into plain text. PDFs are read page by
// page; plain-text exports are accepted as-is. Everything else is rejected.
type Extractor struct {
	maxPages int
}

// NewExtractor creates an Extractor that rejects PDFs longer than maxPages
// (default 50 if <= 0).
func NewExtractor(maxPages int) *Extractor {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &Extractor{maxPages: maxPages}
}

// Extract returns the cleaned text of data. Malformed, unsupported or
// text-free input yields an error wrapping ErrUnreadableDocument; a partial
// or empty string is never returned as success.
func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrUnreadableDocument)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mt := mimetype.Detect(data)
	var (
		raw string
		err error
	)
	switch {
	case mt.Is("application/pdf"):
		raw, err = e.extractPDF(ctx, data)
	case mt.Is("text/plain") || mt.Is("text/csv"):
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnreadableDocument)
		}
		raw = string(data)
	default:
		return "", fmt.Errorf("%w: unsupported content type %s", ErrUnreadableDocument, mt.String())
	}
	if err != nil {
		return "", err
	}

	text := Clean(raw)
	if text == "" {
		return "", fmt.Errorf("%w: no text content found", ErrUnreadableDocument)
	}
	return text, nil
}

// extractPDF reads every page's plain text. A page that fails to decode
// fails the whole document. The PDF library panics on some malformed
// inputs, so panics are converted into ErrUnreadableDocument.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: malformed pdf: %v", ErrUnreadableDocument, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	n := rdr.NumPage()
	if n > e.maxPages {
		slog.Warn("document: pdf over page limit", "pages", n, "max_pages", e.maxPages)
		return "", fmt.Errorf("%w: pdf has %d pages, limit is %d", ErrUnreadableDocument, n, e.maxPages)
	}

	var sb strings.Builder
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pg := rdr.Page(i)
		if pg.V.IsNull() {
			return "", fmt.Errorf("%w: pdf page %d is missing", ErrUnreadableDocument, i)
		}
		txt, err := pg.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: pdf page %d: %v", ErrUnreadableDocument, i, err)
		}
		// Image-only pages carry no text.
		s := strings.TrimSpace(txt)
		if s == "" {
			continue
		}
		sb.WriteString("Page " + strconv.Itoa(i) + "\n")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Clean normalises line endings, collapses runs of blank lines into a single
// newline and trims surrounding whitespace.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
