package worker

import (
	"fmt"
	"strconv"
	"strings"
)

// Defaults applied to fields missing from a worker's configuration.
const (
	DefaultConnection = "database"
	DefaultQueue      = "default"
	DefaultTries      = 3
	DefaultTimeout    = 60   // seconds
	DefaultSleep      = 3    // seconds
	DefaultMemory     = 128  // megabytes
	DefaultMaxJobs    = 1000 // jobs before the worker exits on its own
	DefaultMaxTime    = 3600 // seconds before the worker exits on its own
	DefaultProcesses  = 1
)

// DefaultCommand is the argv prefix used to run one queue worker.
var DefaultCommand = []string{"php", "artisan", "queue:work"}

// Definition describes one logical worker. It is built once from
// configuration and treated as a value afterwards; the supervisor never
// changes a Definition after it was created.
type Definition struct {
	Name       string   `json:"name"`
	Queue      string   `json:"queue"`
	Connection string   `json:"connection"`
	Tries      int      `json:"tries"`
	Timeout    int      `json:"timeout"`
	Sleep      int      `json:"sleep"`
	Memory     int      `json:"memory"`
	Processes  int      `json:"processes"`
	MaxJobs    int      `json:"max_jobs"`
	MaxTime    int      `json:"max_time"`
	Command    []string `json:"command,omitempty"`
	Env        []string `json:"env,omitempty"`
	WorkDir    string   `json:"work_dir,omitempty"`
}

// Fields is the raw, possibly incomplete worker configuration as decoded from
// a config file. Nil pointers mean "not configured".
type Fields struct {
	Queue      *string  `mapstructure:"queue"`
	Connection *string  `mapstructure:"connection"`
	Tries      *int     `mapstructure:"tries"`
	Timeout    *int     `mapstructure:"timeout"`
	Sleep      *int     `mapstructure:"sleep"`
	Memory     *int     `mapstructure:"memory"`
	Processes  *int     `mapstructure:"processes"`
	MaxJobs    *int     `mapstructure:"max_jobs"`
	MaxTime    *int     `mapstructure:"max_time"`
	Command    []string `mapstructure:"command"`
	Env        []string `mapstructure:"env"`
	WorkDir    string   `mapstructure:"work_dir"`
}

// Defaults holds the values used for missing fields. Connection and Command
// are host-level settings, so they are passed in rather than fixed.
type Defaults struct {
	Connection string
	Command    []string
}

// NewDefinition fills missing fields from d and the package defaults. The
// returned slice lists the names of the fields that were missing, in a
// stable order, so the caller can warn about them.
func NewDefinition(name string, f Fields, d Defaults) (Definition, []string, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return Definition{}, nil, err
	}
	conn := d.Connection
	if conn == "" {
		conn = DefaultConnection
	}
	cmd := d.Command
	if len(cmd) == 0 {
		cmd = DefaultCommand
	}

	var missing []string
	str := func(field string, v *string, def string) string {
		if v == nil || strings.TrimSpace(*v) == "" {
			missing = append(missing, field)
			return def
		}
		return *v
	}
	num := func(field string, v *int, def int) int {
		if v == nil {
			missing = append(missing, field)
			return def
		}
		return *v
	}

	def := Definition{
		Name:       name,
		Queue:      str("queue", f.Queue, DefaultQueue),
		Connection: str("connection", f.Connection, conn),
		Tries:      num("tries", f.Tries, DefaultTries),
		Timeout:    num("timeout", f.Timeout, DefaultTimeout),
		Sleep:      num("sleep", f.Sleep, DefaultSleep),
		Memory:     num("memory", f.Memory, DefaultMemory),
		MaxJobs:    num("max_jobs", f.MaxJobs, DefaultMaxJobs),
		MaxTime:    num("max_time", f.MaxTime, DefaultMaxTime),
		Processes:  DefaultProcesses,
		WorkDir:    f.WorkDir,
	}
	if f.Processes != nil {
		def.Processes = *f.Processes
	}
	if len(f.Command) > 0 {
		cmd = f.Command
	}
	def.Command = append([]string(nil), cmd...)
	if len(f.Env) > 0 {
		def.Env = append([]string(nil), f.Env...)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, nil, err
	}
	return def, missing, nil
}

// Validate reports configuration values the supervisor cannot run with.
func (d Definition) Validate() error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	if d.Processes < 1 {
		return fmt.Errorf("worker %q: processes must be at least 1, got %d", d.Name, d.Processes)
	}
	if len(d.Command) == 0 || strings.TrimSpace(d.Command[0]) == "" {
		return fmt.Errorf("worker %q: command must not be empty", d.Name)
	}
	checks := []struct {
		field string
		v     int
	}{
		{"tries", d.Tries}, {"timeout", d.Timeout}, {"sleep", d.Sleep},
		{"memory", d.Memory}, {"max_jobs", d.MaxJobs}, {"max_time", d.MaxTime},
	}
	for _, c := range checks {
		if c.v < 0 {
			return fmt.Errorf("worker %q: %s cannot be negative", d.Name, c.field)
		}
	}
	for i, kv := range d.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("worker %q: env[%d] %q must be in KEY=VALUE format", d.Name, i, kv)
		}
	}
	return nil
}

// InstanceName returns the name of the i-th instance (1-based). A single
// instance uses the bare definition name.
func (d Definition) InstanceName(i int) string {
	if d.Processes > 1 {
		return d.Name + "-" + strconv.Itoa(i)
	}
	return d.Name
}

// InstanceNames lists all instance names of this definition in launch order.
func (d Definition) InstanceNames() []string {
	out := make([]string, 0, d.Processes)
	for i := 1; i <= d.Processes; i++ {
		out = append(out, d.InstanceName(i))
	}
	return out
}

// Args builds the argv for one instance. The worker is named
// "<prefix>:<instance>" so it can be found in process listings.
func (d Definition) Args(prefix, instance string, verbose bool) []string {
	if prefix == "" {
		prefix = "nexus"
	}
	args := make([]string, 0, len(d.Command)+10)
	args = append(args, d.Command...)
	args = append(args,
		d.Connection,
		"--queue="+d.Queue,
		"--tries="+strconv.Itoa(d.Tries),
		"--timeout="+strconv.Itoa(d.Timeout),
		"--sleep="+strconv.Itoa(d.Sleep),
		"--memory="+strconv.Itoa(d.Memory),
		"--max-jobs="+strconv.Itoa(d.MaxJobs),
		"--max-time="+strconv.Itoa(d.MaxTime),
		"--name="+prefix+":"+instance,
	)
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}

// validateName allows [A-Za-z0-9._-] so names are safe in file names and
// log prefixes.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("worker name is required")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("worker name %q must not contain '..'", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("worker name %q: allowed characters are [A-Za-z0-9._-]", name)
		}
	}
	return nil
}
