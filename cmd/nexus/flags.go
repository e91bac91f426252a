package main

import "time"

// RootFlags Flag struct to decouple cobra from logic for testing.
type RootFlags struct {
	ConfigPath string
	Worker     string
	Output     string // table, json or yaml (status)
	NoColor    bool

	// start modes
	Log      bool
	Watch    bool
	Detailed bool

	// status against a running status server instead of the local registry
	APIURL     string
	APIToken   string
	APITimeout time.Duration
	Insecure   bool

	// init
	Template string
	Format   string
	Force    bool

	// actions selectable as flags, like the subcommands
	Stop    bool
	Restart bool
	Status  bool
}

// streaming reports whether any log streaming mode was requested.
func (f RootFlags) streaming() bool { return f.Log || f.Watch || f.Detailed }

// restartPause is the delay between stopping and starting on restart.
var restartPause = 2 * time.Second
