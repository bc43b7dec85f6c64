package localfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/alchemab/aab/internal/constants"
)

// sniffLen is how many leading bytes are read for content type detection.
const sniffLen = 3072

// ErrNotRegular is returned when the upload source is a directory or device.
var ErrNotRegular = errors.New("not a regular file")

// ErrUnsupportedType is returned when a file extension is not an accepted pipeline input.
var ErrUnsupportedType = errors.New("unsupported file type")

// extensionTypes are used when content sniffing is inconclusive.
var extensionTypes = map[string]string{
	".csv":     "text/csv",
	".tsv":     "text/tab-separated-values",
	".parquet": "application/x-parquet",
}

// File is a read-only handle on a local upload source. Size and content
// type are captured when the file is opened.
type File struct {
	path        string
	f           *os.File
	size        int64
	contentType string
}

// Open opens path for reading and detects its content type.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}

	buf := make([]byte, sniffLen)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return &File{
		path:        path,
		f:           f,
		size:        info.Size(),
		contentType: detectContentType(path, buf[:n]),
	}, nil
}

// detectContentType sniffs content and falls back to the extension
// when the result is generic.
func detectContentType(path string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if len(head) > 0 {
		detected := mimetype.Detect(head).String()
		base, _, _ := strings.Cut(detected, ";")
		base = strings.TrimSpace(base)
		if base != "" && base != "text/plain" && base != constants.DefaultContentType {
			return base
		}
	}
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	return constants.DefaultContentType
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Name returns the base name of the file.
func (f *File) Name() string { return filepath.Base(f.path) }

// Size returns the size in bytes at open time.
func (f *File) Size() int64 { return f.size }

// ContentType returns the detected MIME type.
func (f *File) ContentType() string { return f.contentType }

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }

// Close releases the underlying file.
func (f *File) Close() error { return f.f.Close() }

// CheckExtension returns ErrUnsupportedType unless path ends in one of accepted.
// Matching is case-insensitive.
func CheckExtension(path string, accepted []string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range accepted {
		if ext == strings.ToLower(a) {
			return nil
		}
	}
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Errorf("%w: %s has extension %s, accepted: %s", ErrUnsupportedType, filepath.Base(path), ext, strings.Join(accepted, ", "))
}
