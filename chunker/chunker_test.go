package chunker

import (
	"strings"
	"testing"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alphabetText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}

func TestChunk_OverlappingWindows(t *testing.T) {
	text := alphabetText(2000)
	c := New(WithTargetSize(500), WithOverlap(50))

	chunks, err := c.Chunk([]models.Section{{Name: "methodology", Text: text}})
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1].Text, chunks[i].Text
		assert.Equal(t, prev[len(prev)-50:], cur[:50], "chunk %d overlap", i)
	}
	assert.Len(t, chunks[0].Text, 500)
	assert.Len(t, chunks[4].Text, 200)
	assert.True(t, strings.HasSuffix(text, chunks[4].Text))
}

func TestChunk_ShortSectionYieldsOneChunk(t *testing.T) {
	chunks, err := New(WithTargetSize(500), WithOverlap(50)).Chunk([]models.Section{{Name: "abstract", Text: "short"}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0].Text)
}

func TestChunk_OrderAndSectionBoundaries(t *testing.T) {
	sections := []models.Section{
		{Name: "abstract", Text: alphabetText(120)},
		{Name: "introduction", Text: ""},
		{Name: "methodology", Text: alphabetText(250)},
		{Name: "results", Text: "   "},
		{Name: "conclusion", Text: alphabetText(40)},
	}
	chunks, err := New(WithTargetSize(100), WithOverlap(10)).Chunk(sections)
	require.NoError(t, err)

	var got []string
	for i, ch := range chunks {
		assert.Equal(t, i, ch.OrderIndex)
		got = append(got, ch.SectionName)
	}
	assert.Equal(t, []string{
		"abstract", "abstract",
		"methodology", "methodology", "methodology",
		"conclusion",
	}, got)
}

func TestChunk_MultibyteRunes(t *testing.T) {
	text := strings.Repeat("é", 30)
	chunks, err := New(WithTargetSize(20), WithOverlap(5)).Chunk([]models.Section{{Name: "full_text", Text: text}})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 20, len([]rune(chunks[0].Text)))
	assert.Equal(t, 15, len([]rune(chunks[1].Text)))
}

func TestChunk_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"zero size", []Option{WithTargetSize(0)}},
		{"negative overlap", []Option{WithOverlap(-1)}},
		{"overlap equals size", []Option{WithTargetSize(100), WithOverlap(100)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...).Chunk([]models.Section{{Name: "x", Text: "text"}})
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidInput(err))
		})
	}
}
