// Package prompts implements the Prompt Registry (C10): versioned,
// typed templates addressed by stable ids, loaded from YAML files
// rather than constructed by string concatenation (spec §4.10, §9).
package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var builtinTemplates embed.FS

// Template is one versioned prompt: the declared variables it requires,
// the response JSON schema consumers validate against, and LLM call
// parameters.
type Template struct {
	ID              string   `yaml:"id"`
	Version         string   `yaml:"version"`
	RequiredVars    []string `yaml:"required_vars"`
	System          string   `yaml:"system"`
	UserTemplate    string   `yaml:"user_template"`
	Temperature     float32  `yaml:"temperature"`
	MaxTokens       int      `yaml:"max_tokens"`
	ResponseSchema  string   `yaml:"response_schema"`
}

// Registry holds templates keyed by (id, version) plus a "latest"
// pointer per id, spec §4.10.
type Registry struct {
	mu       sync.RWMutex
	versions map[string]map[string]Template // id -> version -> Template
	latest   map[string]string              // id -> latest version
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		versions: make(map[string]map[string]Template),
		latest:   make(map[string]string),
	}
}

// LoadEmbedded loads the module's built-in Braid{kind} templates from
// templates/*.yaml.
func (r *Registry) LoadEmbedded() error {
	entries, err := builtinTemplates.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("read embedded templates: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		raw, err := builtinTemplates.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		var t Template
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("parse template %s: %w", entry.Name(), err)
		}
		r.Register(t)
	}
	return nil
}

// Register adds or replaces a template version, and advances the
// latest pointer if this version sorts after the current latest
// lexicographically (templates use simple vN version strings).
func (r *Registry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.versions[t.ID] == nil {
		r.versions[t.ID] = make(map[string]Template)
	}
	r.versions[t.ID][t.Version] = t

	current, ok := r.latest[t.ID]
	if !ok || t.Version > current {
		r.latest[t.ID] = t.Version
	}
}

// Get resolves a template by id and version; an empty version resolves
// to the latest registered version for that id.
func (r *Registry) Get(id, version string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if version == "" {
		v, ok := r.latest[id]
		if !ok {
			return Template{}, fmt.Errorf("no templates registered for id %q", id)
		}
		version = v
	}
	byVersion, ok := r.versions[id]
	if !ok {
		return Template{}, fmt.Errorf("no templates registered for id %q", id)
	}
	t, ok := byVersion[version]
	if !ok {
		return Template{}, fmt.Errorf("id %q has no version %q", id, version)
	}
	return t, nil
}

// ValidateVariables checks that every variable the template declares
// required is present in vars, before any LLM call is made (spec §4.10
// "Consumers of prompts validate context against the declared
// variables before calling the LLM").
func (t Template) ValidateVariables(vars map[string]any) error {
	var missing []string
	for _, name := range t.RequiredVars {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("template %s@%s missing required variables: %s", t.ID, t.Version, strings.Join(missing, ", "))
	}
	return nil
}

// Render substitutes {{name}} placeholders in the template's user
// message with the string form of each variable. This is intentionally
// a minimal mini-language, not text/template: braid prompts are short,
// flat substitutions (member summaries, aggregated stats), and the
// registry — not ad hoc string concatenation — remains the only place
// prompts are assembled (spec §4.10).
func (t Template) Render(vars map[string]any) string {
	out := t.UserTemplate
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", fmt.Sprintf("%v", v))
	}
	return out
}
