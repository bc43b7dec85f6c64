package localfs

// ExpandOptions configures Expand.
type ExpandOptions struct {
	// IncludeHidden includes hidden files and directories (starting with .).
	// Default is false (hidden items excluded).
	IncludeHidden bool

	// Filter, when set, drops files for which it returns false. Applied to
	// walked and globbed files only; explicit file arguments are always kept.
	Filter func(path string) bool
}
