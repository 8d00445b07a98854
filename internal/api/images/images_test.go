package images

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDecode(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	tests := []struct {
		name    string
		input   string
		wantExt string
		wantErr bool
	}{
		{name: "raw base64", input: encoded, wantExt: ".png"},
		{name: "data url", input: "data:image/png;base64," + encoded, wantExt: ".png"},
		{name: "jpeg", input: base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff\xe0\x00\x10JFIF")), wantExt: ".jpg"},
		{name: "not base64", input: "%%%", wantErr: true},
		{name: "plain text", input: base64.StdEncoding.EncodeToString([]byte("hello")), wantErr: true},
		{name: "data url without base64", input: "data:image/png," + encoded, wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, img.Ext())
		})
	}
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(filepath.Join(dir, "images"), "http://localhost:8080/images/")
	require.NoError(t, err)

	img, err := Decode(base64.StdEncoding.EncodeToString(pngHeader))
	require.NoError(t, err)

	filename, url, err := store.Save(context.Background(), "abc123", img)
	require.NoError(t, err)
	assert.Equal(t, "abc123.png", filename)
	assert.Equal(t, "http://localhost:8080/images/abc123.png", url)

	path, err := store.Path(filename)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	_, err = store.Path("../secret")
	assert.ErrorIs(t, err, ErrImageNotFound)
	_, err = store.Path("missing.png")
	assert.ErrorIs(t, err, ErrImageNotFound)

	require.NoError(t, store.Delete(context.Background(), filename))
	require.NoError(t, store.Delete(context.Background(), filename))
	_, err = store.Path(filename)
	assert.ErrorIs(t, err, ErrImageNotFound)
}
