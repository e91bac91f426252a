//go:build windows

package procinfo

import gopsproc "github.com/shirou/gopsutil/v4/process"

// Alive reports whether pid refers to a running process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}
