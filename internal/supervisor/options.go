package supervisor

import (
	"io"
	"log/slog"
	"time"

	"github.com/loykin/nexus/internal/env"
	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/logger"
	"github.com/loykin/nexus/internal/registry"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultPrefix         = "nexus"
	DefaultEnvironment    = "production"
	DefaultTick           = time.Second
	DefaultStreamTick     = 100 * time.Millisecond
	DefaultWatchTick      = 200 * time.Millisecond
	DefaultSignalInterval = 5 * time.Second
	DefaultWatchInterval  = 2 * time.Second
	DefaultStopGrace      = 10 * time.Second
	DefaultStartProbe     = 100 * time.Millisecond
	DefaultCrashThreshold = 3
	DefaultCrashWindow    = 10 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	Prefix      string // worker names are "<Prefix>:<instance>"
	Environment string // anything but "production" adds --verbose

	// Log streaming modes. Any of them turns streaming on; Watch also enables
	// the file-change trigger and Detailed the job annotations.
	Stream   bool
	Detailed bool
	Watch    bool
	NoColor  bool

	AutoRestart bool   // honor the restart signal file
	SignalFile  string // path whose mtime requests a fleet restart
	BasePath    string // application root; default working directory

	WatchPaths      []string
	WatchExtensions []string
	WatchNotify     bool // use fsnotify to scan sooner

	Tick           time.Duration
	SignalInterval time.Duration
	WatchInterval  time.Duration
	StopGrace      time.Duration
	StartProbe     time.Duration

	// Crash loop handling: after CrashThreshold consecutive crashes within
	// CrashWindow of their start, restarts back off exponentially from 1s up
	// to MaxBackoff. CrashThreshold 0 restarts immediately forever.
	CrashThreshold int
	CrashWindow    time.Duration
	MaxBackoff     time.Duration

	Registry registry.Registry
	PIDFile  string // supervisor's own pid, for out-of-band stop

	Logger   *slog.Logger
	Output   io.Writer // destination of streamed worker output
	History  *history.Recorder
	LogFiles logger.Config // per-instance output files
	Env      *env.Env

	BufferLimit int
}

// Streaming reports whether worker output is streamed to Output.
func (o Options) Streaming() bool { return o.Stream || o.Detailed || o.Watch }

// Verbose reports whether workers are started with --verbose.
func (o Options) Verbose() bool {
	return o.Streaming() || (o.Environment != "" && o.Environment != DefaultEnvironment)
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Environment == "" {
		o.Environment = DefaultEnvironment
	}
	if o.Tick <= 0 {
		switch {
		case o.Watch:
			o.Tick = DefaultWatchTick
		case o.Streaming():
			o.Tick = DefaultStreamTick
		default:
			o.Tick = DefaultTick
		}
	}
	if o.SignalInterval <= 0 {
		o.SignalInterval = DefaultSignalInterval
	}
	if o.WatchInterval <= 0 {
		o.WatchInterval = DefaultWatchInterval
	}
	if o.StopGrace <= 0 {
		o.StopGrace = DefaultStopGrace
	}
	if o.StartProbe <= 0 {
		o.StartProbe = DefaultStartProbe
	}
	if o.CrashThreshold < 0 {
		o.CrashThreshold = 0
	}
	if o.CrashWindow <= 0 {
		o.CrashWindow = DefaultCrashWindow
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Output == nil {
		o.Output = io.Discard
	}
	if o.Env == nil {
		o.Env = env.FromOS()
	}
	return o
}
