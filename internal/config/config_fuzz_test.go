package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// FuzzWorkerConfig feeds random worker tables through Load and Definitions
// and checks that nothing panics and every accepted definition validates.
func FuzzWorkerConfig(f *testing.F) {
	f.Add("default", "default", 2, 128)
	f.Add("emails", "", 0, -1)
	f.Add("a.b", "high,low", 40, 0)

	f.Fuzz(func(t *testing.T, name, queue string, processes, memory int) {
		clean := func(s string) string {
			return strings.Map(func(r rune) rune {
				if r == '"' || r == '\\' || r == '\n' || r == '\r' || r < 0x20 {
					return -1
				}
				return r
			}, s)
		}
		var b strings.Builder
		b.WriteString("[workers.\"" + clean(name) + "\"]\n")
		if queue != "" {
			b.WriteString("queue = \"" + clean(queue) + "\"\n")
		}
		b.WriteString("processes = " + strconv.Itoa(processes) + "\n")
		b.WriteString("memory = " + strconv.Itoa(memory) + "\n")

		path := filepath.Join(t.TempDir(), "fuzz.toml")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			t.Skip()
		}
		c, err := Load(path)
		if err != nil {
			return
		}
		defs, _, _ := c.Definitions()
		for _, d := range defs {
			if err := d.Validate(); err != nil {
				t.Fatalf("accepted invalid definition %+v: %v", d, err)
			}
		}
	})
}
