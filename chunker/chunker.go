// Package chunker splits section text into overlapping fixed-size windows.
package chunker

import (
	"fmt"
	"strings"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
)

// DefaultTargetSize is the default number of characters per chunk.
const DefaultTargetSize = 1000

// DefaultOverlap is the default number of characters shared by consecutive chunks.
const DefaultOverlap = 200

// Chunker splits sections into character windows. Sizes count runes.
type Chunker struct {
	targetSize int
	overlap    int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTargetSize sets the window size in characters.
func WithTargetSize(size int) Option {
	return func(c *Chunker) {
		c.targetSize = size
	}
}

// WithOverlap sets the overlap between consecutive windows in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		targetSize: DefaultTargetSize,
		overlap:    DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TargetSize returns the configured window size.
func (c *Chunker) TargetSize() int { return c.targetSize }

// Validate checks the window configuration.
func (c *Chunker) Validate() error {
	if c.targetSize <= 0 {
		return apperrors.NewInvalidInput("target_size", fmt.Sprintf("must be positive, got %d", c.targetSize))
	}
	if c.overlap < 0 || c.overlap >= c.targetSize {
		return apperrors.NewInvalidInput("overlap", fmt.Sprintf("must be in [0, %d), got %d", c.targetSize, c.overlap))
	}
	return nil
}

// Chunk splits every section into windows. Windows never cross a section
// boundary and OrderIndex increases across the whole document. Empty sections
// produce no chunks.
func (c *Chunker) Chunk(sections []models.Section) ([]models.Chunk, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	step := c.targetSize - c.overlap
	var chunks []models.Chunk
	for _, section := range sections {
		if strings.TrimSpace(section.Text) == "" {
			continue
		}
		runes := []rune(section.Text)
		for start := 0; ; start += step {
			end := min(start+c.targetSize, len(runes))
			chunks = append(chunks, models.Chunk{
				ID:          uuid.New(),
				DocumentID:  section.DocumentID,
				SectionName: section.Name,
				OrderIndex:  len(chunks),
				Text:        string(runes[start:end]),
			})
			if end == len(runes) {
				break
			}
		}
	}
	return chunks, nil
}
