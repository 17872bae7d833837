// Package extractor turns uploaded files into raw text.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// TextExtractor extracts plain text from an uploaded file. An image-only
// document yields an empty string and no error.
type TextExtractor interface {
	ExtractText(ctx context.Context, filename string, data []byte) (string, error)
}

// PDFExtractor reads PDFs page by page. Plain UTF-8 text files pass through.
type PDFExtractor struct {
	logger *slog.Logger
}

func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}

func (e *PDFExtractor) ExtractText(ctx context.Context, filename string, data []byte) (string, error) {
	if IsPDF(data) {
		return e.extractPDF(ctx, filename, data)
	}
	if utf8.Valid(data) && !bytes.ContainsRune(data, 0) {
		return string(data), nil
	}
	return "", fmt.Errorf("%s: %w", filename, ErrUnsupportedFormat)
}

func (e *PDFExtractor) extractPDF(ctx context.Context, filename string, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF %s: %w", filename, err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := pageText(reader, i)
		if err != nil {
			e.logger.Warn("Failed to extract text from page", "file", filename, "page", i, "error", err)
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	e.logger.Debug("Extracted PDF text", "file", filename, "pages", pages, "chars", b.Len())
	return b.String(), nil
}

// pageText extracts one page. The pdf package panics on some malformed
// content streams.
func pageText(reader *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page: %v", r)
		}
	}()
	page := reader.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
