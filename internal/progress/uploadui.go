package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/alchemab/aab/internal/constants"
)

// UploadUI manages one progress bar per file in an upload batch using mpb.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer // line output when not a terminal
	isTerminal bool
	totalFiles int
	started    int32 // atomic file index (1, 2, 3, ...)
	completed  int32
	failed     int32
}

// FileBar represents a single file upload progress bar
type FileBar struct {
	bar         *mpb.Bar
	ui          *UploadUI
	index       int
	localPath   string
	destination string
	size        int64

	mu         sync.Mutex
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewUploadUI creates a new upload UI for totalFiles files on stderr.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
	}
	return newUploadUI(os.Stderr, os.Stdout, isTerminal, totalFiles)
}

func newUploadUI(barOut, lineOut io.Writer, isTerminal bool, totalFiles int) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(barOut),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(100),
		)
	} else {
		// Non-TTY: no bars, just lines
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		out:        lineOut,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates a new progress bar for a file upload
func (u *UploadUI) AddFileBar(localPath, destination string, size int64) FileBarHandle {
	index := int(atomic.AddInt32(&u.started, 1))
	source := truncatePath(localPath, 2)
	now := time.Now()

	fb := &FileBar{
		ui:          u,
		index:       index,
		localPath:   localPath,
		destination: destination,
		size:        size,
		startTime:   now,
		lastUpdate:  now,
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s (%s) → %s",
					index, u.totalFiles, source, humanize.IBytes(uint64(size)), destination), decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Name("ETA ", decor.WCSyncWidth),
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading [%d/%d]: %s (%s) → %s\n",
			index, u.totalFiles, source, humanize.IBytes(uint64(size)), destination)
	}

	return fb
}

// SetUploaded advances the bar to bytes. Parts land in order, so bytes
// never goes backwards.
func (f *FileBar) SetUploaded(bytes int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if bytes <= f.lastBytes {
		return
	}
	now := time.Now()
	if f.bar != nil {
		f.bar.EwmaIncrBy(int(bytes-f.lastBytes), now.Sub(f.lastUpdate))
	}
	f.lastBytes = bytes
	f.lastUpdate = now
}

// Complete marks the upload as finished and prints a summary
func (f *FileBar) Complete(hashedName string, err error) {
	f.mu.Lock()
	elapsed := time.Since(f.startTime)
	f.mu.Unlock()

	var msg string
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		rate := "n/a"
		if secs := elapsed.Seconds(); secs > 0 {
			rate = humanize.IBytes(uint64(float64(f.size)/secs)) + "/s"
		}
		msg = fmt.Sprintf("✓ %s → %s (%s, %s, %s)\n",
			truncatePath(f.localPath, 2),
			hashedName,
			humanize.IBytes(uint64(f.size)),
			elapsed.Round(time.Millisecond),
			rate)
		atomic.AddInt32(&f.ui.completed, 1)
	} else {
		if f.bar != nil {
			f.bar.Abort(false) // keep the failed bar visible
		}
		msg = fmt.Sprintf("✗ %s → %s: %v\n", truncatePath(f.localPath, 2), f.destination, err)
		atomic.AddInt32(&f.ui.failed, 1)
	}

	// Write through mpb so the line lands above the bars
	_, _ = io.WriteString(f.ui.Writer(), msg)
}

// Wait blocks until all progress bars complete
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars.
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if output is to a terminal (progress bars are active).
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// Counts returns how many files completed and failed so far.
func (u *UploadUI) Counts() (completed, failed int) {
	return int(atomic.LoadInt32(&u.completed)), int(atomic.LoadInt32(&u.failed))
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
