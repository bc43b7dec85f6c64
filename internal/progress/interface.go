package progress

import "io"

// ProgressUI tracks a batch of file uploads.
type ProgressUI interface {
	// AddFileBar creates a new progress bar for a file upload
	AddFileBar(localPath, destination string, size int64) FileBarHandle

	// Wait blocks until all progress bars complete
	Wait()

	// Writer returns an io.Writer that safely outputs above the progress bars.
	Writer() io.Writer

	// IsTerminal returns true if output is to a terminal (progress bars are active)
	IsTerminal() bool
}

// FileBarHandle is a handle to a single file's progress bar.
type FileBarHandle interface {
	// SetUploaded moves the bar to the number of bytes stored so far.
	SetUploaded(bytes int64)

	// Complete marks the upload as finished and prints a summary
	Complete(hashedName string, err error)
}
