package agents

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/claude-collective/collective/pkg/catalog"
)

// Shadowed records an agent definition hidden by a higher precedence one
type Shadowed struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	By     string `json:"by"`
}

// Merge combines definition lists given in precedence order, highest first.
// The result is sorted by name.
func Merge(lists ...[]catalog.AgentDefinition) ([]catalog.AgentDefinition, []Shadowed) {
	byName := make(map[string]catalog.AgentDefinition)
	var shadowed []Shadowed

	for _, list := range lists {
		for _, def := range list {
			if winner, ok := byName[def.Name]; ok {
				shadowed = append(shadowed, Shadowed{Name: def.Name, Source: def.Source, By: winner.Source})
				continue
			}
			byName[def.Name] = def
		}
	}

	merged := make([]catalog.AgentDefinition, 0, len(byName))
	for _, def := range byName {
		merged = append(merged, def)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged, shadowed
}

// Registry is a name-indexed set of agent definitions
type Registry struct {
	defs   []catalog.AgentDefinition
	byName map[string]int
}

// NewRegistry indexes defs, which must have unique names
func NewRegistry(defs []catalog.AgentDefinition) *Registry {
	r := &Registry{defs: defs, byName: make(map[string]int, len(defs))}
	for i, def := range defs {
		r.byName[def.Name] = i
	}
	return r
}

// Get returns the named agent
func (r *Registry) Get(name string) (catalog.AgentDefinition, error) {
	i, ok := r.byName[name]
	if !ok {
		return catalog.AgentDefinition{}, errors.Errorf("agent '%s' not found", name)
	}
	return r.defs[i], nil
}

// Names lists agent names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for _, def := range r.defs {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

// All returns every definition
func (r *Registry) All() []catalog.AgentDefinition { return r.defs }
