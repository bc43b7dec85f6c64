// Package progress renders upload and download progress, either as
// terminal bars or as events on the bus.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/alchemab/aab/internal/events"
)

// Reporter reports progress of a single byte stream.
type Reporter interface {
	Start(total int64, description string)
	SetTotal(total int64)
	Update(current int64)
	Finish()
	Error(err error)
	SetDescription(desc string)
}

// CLIProgress implements progress reporting for CLI mode using progress bars.
type CLIProgress struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewCLIProgress creates a new CLI progress reporter writing to stderr.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{out: os.Stderr}
}

// Start initializes the progress bar with total size and description.
func (p *CLIProgress) Start(total int64, description string) {
	out := p.out
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update updates the progress bar to the current position.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// SetTotal replaces the total once it becomes known, turning a spinner into a bar.
func (p *CLIProgress) SetTotal(total int64) {
	if p.bar != nil && total > 0 {
		p.bar.ChangeMax64(total)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error displays an error message.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// SetDescription updates the progress bar description.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// NewDownloadReporter picks the reporter for one download: a bar on a
// terminal, events when bus is set, otherwise nothing.
func NewDownloadReporter(isTerminal bool, bus *events.EventBus, file string) Reporter {
	switch {
	case isTerminal:
		return NewCLIProgress()
	case bus != nil:
		return NewEventProgress(bus, file)
	default:
		return NewNoOpProgress()
	}
}

// EventProgress publishes progress for one file on an event bus.
type EventProgress struct {
	bus     *events.EventBus
	file    string
	total   int64
	current int64
}

// NewEventProgress creates a reporter publishing for file.
func NewEventProgress(bus *events.EventBus, file string) *EventProgress {
	return &EventProgress{bus: bus, file: file}
}

// Start records the total and publishes a 0% event.
func (p *EventProgress) Start(total int64, description string) {
	p.total = total
	p.current = 0
	p.publish()
}

// SetTotal replaces a total that was unknown at Start.
func (p *EventProgress) SetTotal(total int64) {
	if total > 0 {
		p.total = total
	}
}

// Update publishes the current position.
func (p *EventProgress) Update(current int64) {
	p.current = current
	p.publish()
}

// Finish publishes a 100% event.
func (p *EventProgress) Finish() {
	p.current = p.total
	p.publish()
}

// Error publishes an error event.
func (p *EventProgress) Error(err error) {
	if err != nil {
		p.bus.PublishError(p.file, "", 0, err)
	}
}

// SetDescription is a no-op; events carry no description.
func (p *EventProgress) SetDescription(desc string) {}

func (p *EventProgress) publish() {
	var pct float64
	if p.total > 0 {
		pct = float64(p.current) / float64(p.total) * 100
	}
	p.bus.PublishProgress(p.file, pct, p.current, p.total)
}

// NoOpProgress is a progress reporter that does nothing (for background/silent operations).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

// Start does nothing.
func (p *NoOpProgress) Start(total int64, description string) {}

// SetTotal does nothing.
func (p *NoOpProgress) SetTotal(total int64) {}

// Update does nothing.
func (p *NoOpProgress) Update(current int64) {}

// Finish does nothing.
func (p *NoOpProgress) Finish() {}

// Error does nothing.
func (p *NoOpProgress) Error(err error) {}

// SetDescription does nothing.
func (p *NoOpProgress) SetDescription(desc string) {}
