// Package images stores job screenshots on the local filesystem and serves
// them back under a public URL.
package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxImageSize is the largest decoded image accepted.
const MaxImageSize = 5 << 20

var (
	// ErrInvalidImage is returned for images that are not base64 PNG or JPEG data
	ErrInvalidImage = errors.New("invalid image")

	// ErrImageNotFound is returned when a stored image does not exist
	ErrImageNotFound = errors.New("image not found")
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// Decoded is an image ready to be stored.
type Decoded struct {
	Data        []byte
	ContentType string
}

// Ext returns the file extension for the image type.
func (d Decoded) Ext() string {
	return extensions[d.ContentType]
}

// Decode accepts raw base64 or a data URL ("data:image/png;base64,...")
// and checks that the bytes are a PNG or JPEG.
func Decode(encoded string) (Decoded, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 || !strings.HasSuffix(encoded[:comma], ";base64") {
			return Decoded{}, fmt.Errorf("%w: unsupported data url", ErrInvalidImage)
		}
		encoded = encoded[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return Decoded{}, fmt.Errorf("%w: empty", ErrInvalidImage)
	}
	if len(data) > MaxImageSize {
		return Decoded{}, fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, MaxImageSize)
	}

	contentType := http.DetectContentType(data)
	if _, ok := extensions[contentType]; !ok {
		return Decoded{}, fmt.Errorf("%w: unsupported type %s", ErrInvalidImage, contentType)
	}
	return Decoded{Data: data, ContentType: contentType}, nil
}

// LocalStore writes images into a directory.
type LocalStore struct {
	BaseDir string
	BaseURL string // public prefix, e.g. http://localhost:8080/images
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(baseDir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory %s: %w", baseDir, err)
	}
	return &LocalStore{BaseDir: baseDir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes the image as <name><ext> and returns the filename and its
// public URL.
func (s *LocalStore) Save(ctx context.Context, name string, img Decoded) (string, string, error) {
	filename := filepath.Base(name) + img.Ext()
	path := filepath.Join(s.BaseDir, filename)

	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		return "", "", fmt.Errorf("failed to save image %s: %w", filename, err)
	}
	return filename, s.BaseURL + "/" + filename, nil
}

// Path resolves filename inside the store.
func (s *LocalStore) Path(filename string) (string, error) {
	clean := filepath.Base(filename)
	if clean != filename || clean == "." || clean == string(filepath.Separator) {
		return "", ErrImageNotFound
	}

	path := filepath.Join(s.BaseDir, clean)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrImageNotFound
		}
		return "", fmt.Errorf("failed to stat image %s: %w", clean, err)
	}
	return path, nil
}

// Delete removes filename. A missing file is not an error.
func (s *LocalStore) Delete(ctx context.Context, filename string) error {
	if filename == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.BaseDir, filepath.Base(filename)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete image %s: %w", filename, err)
	}
	return nil
}
