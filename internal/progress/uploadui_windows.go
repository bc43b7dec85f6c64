//go:build windows

package progress

import (
	"os"

	"golang.org/x/sys/windows"
)

const enableVirtualTerminalProcessing = 0x0004

// enableWindowsANSI turns on Virtual Terminal processing for the console
// behind f so mpb's cursor movement renders.
func enableWindowsANSI(f *os.File) {
	handle := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err == nil {
		_ = windows.SetConsoleMode(handle, mode|enableVirtualTerminalProcessing)
	}
}
