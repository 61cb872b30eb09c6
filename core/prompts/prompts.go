// Package prompts loads versioned prompt templates.
//
// Templates are YAML files named {name}_{version}.yaml. The set compiled into
// the binary can be overridden file by file from a directory.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"pcb-cost/internal/errors"
)

//go:embed templates/*.yaml
var embedded embed.FS

// DefaultVersion is used when no version is configured
const DefaultVersion = "v1"

// Template is one versioned prompt
type Template struct {
	Name               string `yaml:"-"`
	Version            string `yaml:"version"`
	Description        string `yaml:"description"`
	SystemPrompt       string `yaml:"system_prompt"`
	UserPromptTemplate string `yaml:"user_prompt_template"`
	Created            string `yaml:"created,omitempty"`
	Updated            string `yaml:"updated,omitempty"`

	// Source is the file the template came from
	Source string `yaml:"-"`

	user *template.Template
}

// Info describes an available template
type Info struct {
	Name        string
	Version     string
	Description string
	Source      string
}

// Manager loads and caches templates. Safe for concurrent use.
type Manager struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*Template
}

// NewManager creates a manager. A non-empty dir is searched before the
// embedded templates.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, cache: make(map[string]*Template)}
}

func fileName(name, version string) string {
	return name + "_" + version + ".yaml"
}

// Load returns the template for (name, version)
func (m *Manager) Load(name, version string) (*Template, error) {
	if version == "" {
		version = DefaultVersion
	}
	key := fileName(name, version)

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.cache[key]; ok {
		return t, nil
	}

	data, source, err := m.read(key)
	if err != nil {
		return nil, err
	}

	t := &Template{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, errors.Template(fmt.Sprintf("invalid template %s", source), err)
	}
	if strings.TrimSpace(t.UserPromptTemplate) == "" {
		return nil, errors.Template(fmt.Sprintf("template %s has no user_prompt_template", source), nil)
	}
	t.Name = name
	t.Source = source
	if t.Version == "" {
		t.Version = version
	}

	t.user, err = template.New(key).Option("missingkey=error").Parse(t.UserPromptTemplate)
	if err != nil {
		return nil, errors.Template(fmt.Sprintf("unparsable template %s", source), err)
	}

	m.cache[key] = t
	return t, nil
}

func (m *Manager) read(file string) ([]byte, string, error) {
	if m.dir != "" {
		p := filepath.Join(m.dir, file)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, p, nil
		}
		if !os.IsNotExist(err) {
			return nil, "", errors.Template(fmt.Sprintf("failed to read %s", p), err)
		}
	}

	p := path.Join("templates", file)
	data, err := embedded.ReadFile(p)
	if err != nil {
		return nil, "", errors.NotFound("prompt template", strings.TrimSuffix(file, ".yaml"))
	}
	return data, "embedded:" + p, nil
}

// Render returns the system prompt and the rendered user prompt. Every
// variable the template references must be present in vars.
func (m *Manager) Render(name, version string, vars map[string]interface{}) (string, string, error) {
	t, err := m.Load(name, version)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := t.user.Execute(&buf, vars); err != nil {
		return "", "", errors.Template(fmt.Sprintf("failed to render %s", fileName(name, t.Version)), err)
	}
	return strings.TrimSpace(t.SystemPrompt), strings.TrimSpace(buf.String()), nil
}

// List returns every available template, directory overrides first
func (m *Manager) List() ([]Info, error) {
	seen := make(map[string]bool)
	var out []Info

	add := func(fsys fs.FS, root, prefix string) error {
		entries, err := fs.ReadDir(fsys, root)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") || seen[e.Name()] {
				continue
			}
			name, version, ok := splitName(e.Name())
			if !ok {
				continue
			}
			seen[e.Name()] = true

			info := Info{Name: name, Version: version, Source: prefix + e.Name()}
			if data, err := fs.ReadFile(fsys, path.Join(root, e.Name())); err == nil {
				var t Template
				if yaml.Unmarshal(data, &t) == nil {
					info.Description = t.Description
				}
			}
			out = append(out, info)
		}
		return nil
	}

	if m.dir != "" {
		if err := add(os.DirFS(m.dir), ".", m.dir+string(filepath.Separator)); err != nil && !os.IsNotExist(err) {
			return nil, errors.Template(fmt.Sprintf("failed to list %s", m.dir), err)
		}
	}
	if err := add(embedded, "templates", "embedded:templates/"); err != nil {
		return nil, errors.Internal("failed to list embedded templates", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// splitName parses component_classification_v1.yaml
func splitName(file string) (string, string, bool) {
	stem := strings.TrimSuffix(file, ".yaml")
	idx := strings.LastIndex(stem, "_v")
	if idx <= 0 || idx == len(stem)-2 {
		return "", "", false
	}
	return stem[:idx], stem[idx+1:], true
}
