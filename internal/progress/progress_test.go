package progress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemab/aab/internal/events"
)

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		n    int
		want string
	}{
		{"file.csv", 2, "file.csv"},
		{"runs/file.csv", 2, "file.csv"},
		{"/data/runs/2024/file.csv", 2, "…/2024/file.csv"},
		{"/data/runs/2024/file.csv", 3, "…/runs/2024/file.csv"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncatePath(tt.path, tt.n), tt.path)
	}
}

func TestUploadUINonTerminal(t *testing.T) {
	var lines bytes.Buffer
	ui := newUploadUI(&bytes.Buffer{}, &lines, false, 2)
	assert.False(t, ui.IsTerminal())
	assert.Same(t, &lines, ui.Writer())

	ok := ui.AddFileBar("/data/runs/a.csv", "runs/a.csv", 2048)
	ok.SetUploaded(1024)
	ok.SetUploaded(512) // never goes backwards
	ok.SetUploaded(2048)
	ok.Complete("9f1e_autoantibody.csv", nil)

	bad := ui.AddFileBar("/data/runs/b.csv", "runs/b.csv", 10)
	bad.Complete("", errors.New("part 1 transfer failed"))
	ui.Wait()

	out := lines.String()
	assert.Contains(t, out, "Uploading [1/2]: …/runs/a.csv (2.0 KiB) → runs/a.csv")
	assert.Contains(t, out, "Uploading [2/2]: …/runs/b.csv")
	assert.Contains(t, out, "✓ …/runs/a.csv → 9f1e_autoantibody.csv")
	assert.Contains(t, out, "✗ …/runs/b.csv → runs/b.csv: part 1 transfer failed")

	done, failed := ui.Counts()
	assert.Equal(t, 1, done)
	assert.Equal(t, 1, failed)
	assert.Equal(t, int64(2048), ok.(*FileBar).lastBytes)
}

func TestEventProgressPublishesPercentages(t *testing.T) {
	bus := events.NewEventBus(8)
	defer bus.Close()
	ch := bus.Subscribe(events.EventProgress)
	errs := bus.Subscribe(events.EventError)

	p := NewEventProgress(bus, "report.csv")
	p.Start(200, "downloading")
	p.Update(50)
	p.Finish()
	p.Error(errors.New("boom"))

	var pcts []float64
	for i := 0; i < 3; i++ {
		ev := (<-ch).(*events.ProgressEvent)
		assert.Equal(t, "report.csv", ev.File)
		assert.Equal(t, int64(200), ev.BytesTotal)
		pcts = append(pcts, ev.Percentage)
	}
	assert.Equal(t, []float64{0, 25, 100}, pcts)

	ev := (<-errs).(*events.ErrorEvent)
	require.Error(t, ev.Error)
	assert.Equal(t, "boom", ev.Error.Error())
}

func TestCLIProgressWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	p := &CLIProgress{out: &buf}
	p.Update(10) // before Start is a no-op
	p.Start(100, "report.csv")
	p.Update(100)
	p.Finish()
	p.Error(errors.New("disk full"))

	assert.Contains(t, buf.String(), "report.csv")
	assert.Contains(t, buf.String(), "Error: disk full")
}

func TestCLIProgressSpinnerGetsTotal(t *testing.T) {
	var buf bytes.Buffer
	p := &CLIProgress{out: &buf}
	p.SetTotal(10) // before Start is a no-op
	p.Start(-1, "run-1_annotated.csv")
	p.SetTotal(64)
	p.Update(64)
	p.Finish()

	assert.Contains(t, buf.String(), "run-1_annotated.csv")
	assert.Equal(t, int64(64), p.bar.GetMax64())
}

func TestNewDownloadReporter(t *testing.T) {
	bus := events.NewEventBus(8)
	defer bus.Close()

	assert.IsType(t, &CLIProgress{}, NewDownloadReporter(true, bus, "r.csv"))
	assert.IsType(t, &EventProgress{}, NewDownloadReporter(false, bus, "r.csv"))
	assert.IsType(t, &NoOpProgress{}, NewDownloadReporter(false, nil, "r.csv"))
}

func TestEventProgressLearnsTotalLate(t *testing.T) {
	bus := events.NewEventBus(8)
	defer bus.Close()
	ch := bus.Subscribe(events.EventProgress)

	p := NewDownloadReporter(false, bus, "r.csv")
	p.Start(-1, "r.csv")
	p.SetTotal(200)
	p.Update(50)

	first := (<-ch).(*events.ProgressEvent)
	assert.Zero(t, first.Percentage)
	second := (<-ch).(*events.ProgressEvent)
	assert.Equal(t, 25.0, second.Percentage)
	assert.EqualValues(t, 200, second.BytesTotal)
}

func TestReportersSatisfyInterface(t *testing.T) {
	var _ Reporter = NewCLIProgress()
	var _ Reporter = NewEventProgress(nil, "x")
	var _ Reporter = NewNoOpProgress()
	var _ ProgressUI = newUploadUI(&bytes.Buffer{}, &bytes.Buffer{}, false, 0)
}
