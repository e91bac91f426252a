// Package procinfo answers questions about arbitrary host processes by PID:
// whether they are alive, how much memory they use and how long they have
// been running. It is used for processes this invocation did not start.
package procinfo

import (
	"math"
	"strconv"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// NotAvailable is shown for values that could not be determined.
const NotAvailable = "N/A"

// Info is a point-in-time view of one process.
type Info struct {
	PID       int           `json:"pid" yaml:"pid"`
	Alive     bool          `json:"alive" yaml:"alive"`
	MemoryMB  float64       `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
	HasMemory bool          `json:"-" yaml:"-"`
	Uptime    time.Duration `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	HasUptime bool          `json:"-" yaml:"-"`
}

// Probe collects Info for pid. Memory and uptime are only looked up for live
// processes; failures leave the corresponding Has* flag false.
func Probe(pid int, now time.Time) Info {
	info := Info{PID: pid, Alive: Alive(pid)}
	if !info.Alive {
		return info
	}
	if mb, ok := MemoryMB(pid); ok {
		info.MemoryMB, info.HasMemory = mb, true
	}
	if st := StartTime(pid); !st.IsZero() {
		up := now.Sub(st)
		if up < 0 {
			up = 0
		}
		info.Uptime, info.HasUptime = up, true
	}
	return info
}

// Memory renders resident memory in megabytes with one decimal, or N/A.
func (i Info) Memory() string {
	if !i.HasMemory {
		return NotAvailable
	}
	return formatDecimal(i.MemoryMB)
}

// UptimeString renders uptime via FormatUptime, or N/A.
func (i Info) UptimeString() string {
	if !i.HasUptime {
		return NotAvailable
	}
	return FormatUptime(i.Uptime)
}

// MemoryMB returns the resident set size of pid in megabytes rounded to one
// decimal.
func MemoryMB(pid int) (float64, bool) {
	p, err := gopsproc.NewProcess(int32(pid)) // #nosec G115
	if err != nil {
		return 0, false
	}
	mi, err := p.MemoryInfo()
	if err != nil || mi == nil {
		return 0, false
	}
	return round1(float64(mi.RSS) / (1024 * 1024)), true
}

// FormatUptime renders d as whole seconds below a minute, whole minutes below
// an hour and hours with one decimal above that: "42s", "7m", "2.5h".
func FormatUptime(d time.Duration) string {
	s := d.Seconds()
	switch {
	case s < 60:
		return strconv.FormatFloat(math.Round(s), 'f', -1, 64) + "s"
	case s < 3600:
		return strconv.FormatFloat(math.Round(s/60), 'f', -1, 64) + "m"
	default:
		return formatDecimal(s/3600) + "h"
	}
}

func createTime(pid int) time.Time {
	p, err := gopsproc.NewProcess(int32(pid)) // #nosec G115
	if err != nil {
		return time.Time{}
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// formatDecimal prints at most one decimal and drops a trailing ".0".
func formatDecimal(v float64) string {
	return strconv.FormatFloat(round1(v), 'f', -1, 64)
}
