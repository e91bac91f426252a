package template

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// TemplateType represents the type of starter config to generate
type TemplateType string

const (
	TypeBasic    TemplateType = "basic"
	TypeSimple   TemplateType = "simple"
	TypeRedis    TemplateType = "redis"
	TypeDatabase TemplateType = "database"
	TypeDB       TemplateType = "db"
	TypeSQS      TemplateType = "sqs"
	TypeMulti    TemplateType = "multi"
)

// Format is the output encoding of a rendered config.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ConfigTemplate is a starter config file. Keys match what the config
// loader reads.
type ConfigTemplate struct {
	Prefix      string            `toml:"prefix" yaml:"prefix" json:"prefix"`
	Environment string            `toml:"environment" yaml:"environment" json:"environment"`
	AutoRestart bool              `toml:"auto_restart" yaml:"auto_restart" json:"auto_restart"`
	Log         LogTemplate       `toml:"log" yaml:"log" json:"log"`
	Workers     map[string]Worker `toml:"workers" yaml:"workers" json:"workers"`
}

type LogTemplate struct {
	Level string `toml:"level" yaml:"level" json:"level"`
	Dir   string `toml:"dir,omitempty" yaml:"dir,omitempty" json:"dir,omitempty"`
}

// Worker is one [workers.<name>] table.
type Worker struct {
	Queue      string `toml:"queue" yaml:"queue" json:"queue"`
	Connection string `toml:"connection" yaml:"connection" json:"connection"`
	Tries      int    `toml:"tries" yaml:"tries" json:"tries"`
	Timeout    int    `toml:"timeout" yaml:"timeout" json:"timeout"`
	Sleep      int    `toml:"sleep" yaml:"sleep" json:"sleep"`
	Memory     int    `toml:"memory" yaml:"memory" json:"memory"`
	Processes  int    `toml:"processes" yaml:"processes" json:"processes"`
	MaxJobs    int    `toml:"max_jobs" yaml:"max_jobs" json:"max_jobs"`
	MaxTime    int    `toml:"max_time" yaml:"max_time" json:"max_time"`
}

// Generator generates starter configs
type Generator struct{}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate builds a starter config; prefix names the worker processes.
func (g *Generator) Generate(templateType TemplateType, prefix string) (*ConfigTemplate, error) {
	if prefix == "" {
		prefix = "queue"
	}
	t := &ConfigTemplate{
		Prefix:      prefix,
		Environment: "production",
		AutoRestart: true,
		Log:         LogTemplate{Level: "info"},
	}
	switch templateType {
	case TypeBasic, TypeSimple, "":
		t.Workers = map[string]Worker{"default": worker("default", "database", 1)}
	case TypeRedis:
		t.Workers = map[string]Worker{
			"default": worker("default", "redis", 2),
			"high":    worker("high,default", "redis", 1),
		}
	case TypeDatabase, TypeDB:
		w := worker("default", "database", 1)
		w.Sleep = 5
		t.Workers = map[string]Worker{"default": w}
	case TypeSQS:
		w := worker("default", "sqs", 2)
		w.Timeout = 90
		t.Workers = map[string]Worker{"default": w}
	case TypeMulti:
		emails := worker("emails,notifications", "redis", 2)
		emails.Tries = 5
		reports := worker("reports", "redis", 1)
		reports.Timeout = 600
		reports.Memory = 512
		t.Workers = map[string]Worker{
			"default": worker("default", "redis", 2),
			"emails":  emails,
			"reports": reports,
		}
		t.Log.Dir = "storage/logs/nexus"
	default:
		return nil, fmt.Errorf("unsupported template type: %s (supported: %v)", templateType, g.GetSupportedTypes())
	}
	return t, nil
}

func worker(queue, connection string, processes int) Worker {
	return Worker{
		Queue:      queue,
		Connection: connection,
		Tries:      3,
		Timeout:    60,
		Sleep:      3,
		Memory:     128,
		Processes:  processes,
		MaxJobs:    1000,
		MaxTime:    3600,
	}
}

// Render encodes t in the given format.
func (g *Generator) Render(t *ConfigTemplate, format Format) ([]byte, error) {
	switch format {
	case FormatTOML, "":
		return toml.Marshal(t)
	case FormatYAML:
		return yaml.Marshal(t)
	case FormatJSON:
		return json.MarshalIndent(t, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// GetSupportedTypes returns a list of supported template types
func (g *Generator) GetSupportedTypes() []string {
	types := []string{
		string(TypeBasic), string(TypeRedis), string(TypeDatabase),
		string(TypeSQS), string(TypeMulti),
	}
	sort.Strings(types)
	return types
}
