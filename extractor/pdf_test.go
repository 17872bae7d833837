package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText_PlainText(t *testing.T) {
	e := NewPDFExtractor(nil)
	text, err := e.ExtractText(context.Background(), "paper.txt", []byte("Abstract\nWe study things."))
	require.NoError(t, err)
	assert.Equal(t, "Abstract\nWe study things.", text)
}

func TestExtractText_Binary(t *testing.T) {
	e := NewPDFExtractor(nil)
	_, err := e.ExtractText(context.Background(), "image.png", []byte{0x89, 'P', 'N', 'G', 0x00, 0xff})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractText_BrokenPDF(t *testing.T) {
	e := NewPDFExtractor(nil)
	_, err := e.ExtractText(context.Background(), "broken.pdf", []byte("%PDF-1.4\nnot really a pdf"))
	assert.Error(t, err)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n")))
	assert.True(t, IsPDF([]byte("\n%PDF-1.4")))
	assert.False(t, IsPDF([]byte("hello")))
}
