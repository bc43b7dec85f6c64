package localfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Expand resolves upload arguments into a sorted, de-duplicated list of
// regular files. Arguments may be plain paths, directories (walked
// recursively) or doublestar globs such as "runs/**/*.csv".
func Expand(args []string, opts ExpandOptions) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if hasMeta(arg) {
			matches, err := expandGlob(arg, opts)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no files match %s", arg)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		err = walkFiles(arg, opts, func(path string) error {
			add(path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(out)
	return out, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

func expandGlob(arg string, opts ExpandOptions) ([]string, error) {
	base, pattern := doublestar.SplitPattern(filepath.ToSlash(arg))
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %s", arg)
	}

	matches, err := doublestar.Glob(os.DirFS(filepath.FromSlash(base)), pattern, doublestar.WithNoFollow())
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s: %w", arg, err)
	}

	var files []string
	for _, m := range matches {
		if !opts.IncludeHidden && hasHiddenElement(m) {
			continue
		}
		full := filepath.Join(filepath.FromSlash(base), filepath.FromSlash(m))
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if opts.Filter != nil && !opts.Filter(full) {
			continue
		}
		files = append(files, full)
	}
	return files, nil
}

// walkFiles visits regular files under root, skipping hidden entries unless requested.
func walkFiles(root string, opts ExpandOptions, fn func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Error accessing path - skip it
			return nil
		}

		if path != root && !opts.IncludeHidden && IsHiddenName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if opts.Filter != nil && !opts.Filter(path) {
			return nil
		}
		return fn(path)
	})
}
