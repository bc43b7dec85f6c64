package localfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemab/aab/internal/constants"
)

func TestIsHiddenName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{".hidden", true},
		{".a.csv", true},
		{"visible.csv", false},
		{"..", false}, // Special case: parent dir reference
		{".", false},  // Special case: current dir reference
		{"", false},
	}

	for _, tt := range tests {
		if got := IsHiddenName(tt.name); got != tt.expected {
			t.Errorf("IsHiddenName(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}

func TestHasHiddenElement(t *testing.T) {
	assert.True(t, hasHiddenElement("runs/.cache/a.csv"))
	assert.True(t, hasHiddenElement(".a.csv"))
	assert.False(t, hasHiddenElement("runs/2024/a.csv"))
	assert.False(t, hasHiddenElement("../runs/a.csv"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestOpenCapturesSizeAndType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	writeFile(t, path, "heavy,light\nEVQLV,DIQMT\nQVQLQ,EIVLT\n")

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "input.csv", f.Name())
	assert.EqualValues(t, 36, f.Size())
	assert.Equal(t, "text/csv", f.ContentType())

	b := make([]byte, 5)
	_, err = f.ReadAt(b, 6)
	require.NoError(t, err)
	assert.Equal(t, "light", string(b))
}

func TestOpenUnknownBinaryFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	writeFile(t, path, "\x00\x01\x02\x03")

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, constants.DefaultContentType, f.ContentType())
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tsv")
	writeFile(t, path, "")

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.EqualValues(t, 0, f.Size())
	assert.Equal(t, "text/tab-separated-values", f.ContentType())
}

func TestOpenRejectsDirectory(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.True(t, errors.Is(err, ErrNotRegular))
}

func TestCheckExtension(t *testing.T) {
	accepted := constants.AcceptedExtensions
	assert.NoError(t, CheckExtension("a/b/input.csv", accepted))
	assert.NoError(t, CheckExtension("INPUT.PARQUET", accepted))
	assert.ErrorIs(t, CheckExtension("notes.txt", accepted), ErrUnsupportedType)

	err := CheckExtension("noext", accepted)
	require.ErrorIs(t, err, ErrUnsupportedType)
	assert.True(t, strings.Contains(err.Error(), "(none)"))
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.csv"), "x")
	writeFile(t, filepath.Join(dir, "runs", "b.csv"), "x")
	writeFile(t, filepath.Join(dir, "runs", "deep", "c.tsv"), "x")
	writeFile(t, filepath.Join(dir, "runs", ".cache", "d.csv"), "x")
	writeFile(t, filepath.Join(dir, "runs", "notes.txt"), "x")

	t.Run("glob", func(t *testing.T) {
		got, err := Expand([]string{filepath.Join(dir, "runs", "**", "*.csv")}, ExpandOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "runs", "b.csv")}, got)
	})

	t.Run("glob with hidden", func(t *testing.T) {
		got, err := Expand([]string{filepath.Join(dir, "runs", "**", "*.csv")}, ExpandOptions{IncludeHidden: true})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("directory with filter", func(t *testing.T) {
		filter := func(p string) bool { return CheckExtension(p, constants.AcceptedExtensions) == nil }
		got, err := Expand([]string{dir}, ExpandOptions{Filter: filter})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "a.csv"),
			filepath.Join(dir, "runs", "b.csv"),
			filepath.Join(dir, "runs", "deep", "c.tsv"),
		}, got)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		a := filepath.Join(dir, "a.csv")
		got, err := Expand([]string{a, a, filepath.Join(dir, "*.csv")}, ExpandOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{a}, got)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := Expand([]string{filepath.Join(dir, "*.parquet")}, ExpandOptions{})
		assert.Error(t, err)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := Expand([]string{filepath.Join(dir, "missing.csv")}, ExpandOptions{})
		assert.Error(t, err)
	})
}
