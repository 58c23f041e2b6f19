package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Agent struct {
	Name            string   `yaml:"name"`
	Role            string   `yaml:"role"`
	Goal            string   `yaml:"goal"`
	Backstory       string   `yaml:"backstory"`
	Tools           []string `yaml:"tools"`
	AllowDelegation bool     `yaml:"allow_delegation"`
	Verbose         bool     `yaml:"verbose"`
	// tope de caracteres de contexto de herramientas por tarea
	MaxContextChars int `yaml:"max_context_chars"`
}

type Task struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
	Agent          string `yaml:"agent"`
	// SearchQuery is a template for the search tool; defaults to symptoms + history.
	SearchQuery string `yaml:"search_query"`
}

type Crew struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Process     string   `yaml:"process"` // sequential (only one supported)
	Agents      []string `yaml:"agents"`
	Tasks       []string `yaml:"tasks"`
	Verbose     bool     `yaml:"verbose"`
}

type Config struct {
	Agents map[string]Agent
	Tasks  map[string]Task
	Crews  map[string]Crew
}

func LoadFromDir(base string) (*Config, error) {
	cfg := &Config{
		Agents: make(map[string]Agent),
		Tasks:  make(map[string]Task),
		Crews:  make(map[string]Crew),
	}

	var agents struct {
		Agents []Agent `yaml:"agents"`
	}
	if err := loadDir(filepath.Join(base, "agents"), &agents, func() {
		for _, a := range agents.Agents {
			cfg.Agents[a.Name] = a
		}
		agents.Agents = nil
	}); err != nil {
		return nil, err
	}

	var tasks struct {
		Tasks []Task `yaml:"tasks"`
	}
	if err := loadDir(filepath.Join(base, "tasks"), &tasks, func() {
		for _, t := range tasks.Tasks {
			cfg.Tasks[t.Name] = t
		}
		tasks.Tasks = nil
	}); err != nil {
		return nil, err
	}

	var crews struct {
		Crews []Crew `yaml:"crews"`
	}
	if err := loadDir(filepath.Join(base, "crews"), &crews, func() {
		for _, c := range crews.Crews {
			cfg.Crews[c.Name] = c
		}
		crews.Crews = nil
	}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDir unmarshals every yaml file of dir into out and calls collect after each one.
func loadDir(dir string, out any, collect func()) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s dir: %w", filepath.Base(dir), err)
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		collect()
	}
	return nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Validate checks cross references between crews, agents and tasks.
func (c *Config) Validate() error {
	if len(c.Crews) == 0 {
		return fmt.Errorf("no crews defined")
	}
	for name, cr := range c.Crews {
		if cr.Process != "" && cr.Process != "sequential" {
			return fmt.Errorf("crew %s: unsupported process %q", name, cr.Process)
		}
		if len(cr.Tasks) == 0 {
			return fmt.Errorf("crew %s: no tasks", name)
		}
		members := make(map[string]bool, len(cr.Agents))
		for _, a := range cr.Agents {
			if _, ok := c.Agents[a]; !ok {
				return fmt.Errorf("crew %s: agent %s not found", name, a)
			}
			members[a] = true
		}
		for _, tn := range cr.Tasks {
			t, ok := c.Tasks[tn]
			if !ok {
				return fmt.Errorf("crew %s: task %s not found", name, tn)
			}
			if !members[t.Agent] {
				return fmt.Errorf("crew %s: task %s assigned to %s which is not a crew member", name, tn, t.Agent)
			}
		}
	}
	return nil
}

// CrewNames returns the crew names sorted.
func (c *Config) CrewNames() []string {
	names := make([]string, 0, len(c.Crews))
	for n := range c.Crews {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
