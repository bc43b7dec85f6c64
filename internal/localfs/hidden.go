// Package localfs opens upload sources and expands upload arguments
// (paths, directories and globs) into file lists.
package localfs

import "strings"

// IsHiddenName reports whether a single path element is a dot-file.
// "." and ".." are not hidden.
func IsHiddenName(name string) bool {
	return len(name) > 1 && name[0] == '.' && name != ".."
}

// hasHiddenElement reports whether any element of a slash-separated glob
// match is hidden, so "runs/.cache/a.csv" is skipped as well as ".a.csv".
func hasHiddenElement(slashPath string) bool {
	for _, elem := range strings.Split(slashPath, "/") {
		if IsHiddenName(elem) {
			return true
		}
	}
	return false
}
