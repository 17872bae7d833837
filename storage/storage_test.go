package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectPath(t *testing.T) {
	id := uuid.MustParse("6f1c2b7e-0000-4000-8000-000000000001")
	tests := []struct {
		filename string
		want     string
	}{
		{"paper.pdf", "6f/6f1c2b7e-0000-4000-8000-000000000001_paper.pdf"},
		{"My Paper (final).PDF", "6f/6f1c2b7e-0000-4000-8000-000000000001_My_Paper_final.pdf"},
		{"../../etc/passwd", "6f/6f1c2b7e-0000-4000-8000-000000000001_passwd"},
		{`C:\docs\notes.txt`, "6f/6f1c2b7e-0000-4000-8000-000000000001_notes.txt"},
		{"", "6f/6f1c2b7e-0000-4000-8000-000000000001_upload"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, objectPath(id, tt.filename))
		})
	}
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, err := s.Save(ctx, uuid.New(), "paper.pdf", strings.NewReader("%PDF-1.7 body"))
	require.NoError(t, err)

	rc, err := s.Open(ctx, path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.7 body", string(data))

	require.NoError(t, s.Delete(ctx, path))
	require.NoError(t, s.Delete(ctx, path))
	_, err = s.Open(ctx, path)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "../outside.pdf")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Type: TypeS3})
	assert.Error(t, err)
}
