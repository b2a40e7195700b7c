package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolstats/core"
)

func TestVersion(t *testing.T) {
	assert.Len(t, Version([]byte("a")), 12)
	assert.Equal(t, Version([]byte("a")), Version([]byte("a")))
	assert.NotEqual(t, Version([]byte("a")), Version([]byte("b")))
}

func TestLocalStorage_Upload(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStorage(core.StorageConfig{Root: root, BaseURL: "/files/"})
	att := core.NewAttachment("photo.png", []byte("png"), "image/png")

	up, err := s.Upload(context.Background(), att, "classes_0_u1", "/photos/r1/a")
	require.NoError(t, err)
	assert.Equal(t, "classes_0_u1.png", up.FileName)
	assert.Equal(t, "photos/r1/a/classes_0_u1.png", up.Path)
	assert.Equal(t, "/files/photos/r1/a/classes_0_u1.png?v="+Version([]byte("png")), up.URL)

	b, err := os.ReadFile(filepath.Join(root, "photos", "r1", "a", "classes_0_u1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), b)

	tests := []struct {
		name, file, dir string
	}{
		{name: "escaping dir", file: "x", dir: "../etc"},
		{name: "empty name", file: "", dir: "photos"},
		{name: "nested name", file: "a/b", dir: "photos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upload(context.Background(), att, tt.file, tt.dir)
			assert.Error(t, err)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Upload(ctx, att, "x", "photos")
	assert.Equal(t, context.Canceled, err)
}

func TestMemoryStorage_Upload(t *testing.T) {
	s := NewMemoryStorage("https://files.test")
	up, err := s.Upload(context.Background(), core.NewAttachment("doc.pdf", []byte("%PDF"), "application/pdf"), "info_u1", "proofs/r1/a")
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/proofs/r1/a/info_u1.pdf?v="+Version([]byte("%PDF")), up.URL)

	b, ok := s.File("proofs/r1/a/info_u1.pdf")
	require.True(t, ok)
	assert.Equal(t, []byte("%PDF"), b)
}
