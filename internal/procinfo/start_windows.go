//go:build windows

package procinfo

import "time"

// StartTime returns when pid was started, or the zero time if unknown.
func StartTime(pid int) time.Time {
	if pid <= 0 {
		return time.Time{}
	}
	return createTime(pid)
}
