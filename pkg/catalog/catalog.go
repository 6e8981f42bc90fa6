// Package catalog defines the skill catalog model shared by the loader, the
// merger, the resolver and the compiler. A catalog is a set of skill entries,
// each described by a metadata document with relation rules, plus the category
// definitions those entries are grouped under.
package catalog

import (
	"regexp"
	"strings"
)

// SkillID identifies a skill within a merged matrix
type SkillID string

// CategoryPath is a "domain/subcategory" path such as "frontend/framework"
type CategoryPath string

var (
	segmentPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	idPattern      = regexp.MustCompile(`^(@[a-z0-9]+(-[a-z0-9]+)*/)?[a-z0-9]+(-[a-z0-9]+)*(\.[a-z0-9]+(-[a-z0-9]+)*)*$`)
)

// Valid reports whether the id matches the identifier grammar: lowercase
// alphanumeric words joined by hyphens or dots, with an optional "@scope/" prefix.
func (id SkillID) Valid() bool {
	return len(id) > 0 && len(id) <= 128 && idPattern.MatchString(string(id))
}

// ValidAgentName reports whether name is lowercase alphanumeric words joined
// by hyphens. Compiled documents are written to "<name>.md".
func ValidAgentName(name string) bool {
	return len(name) <= 128 && segmentPattern.MatchString(name)
}

// Domain returns the first path segment
func (p CategoryPath) Domain() string {
	domain, _, _ := strings.Cut(string(p), "/")
	return domain
}

// Subcategory returns the second path segment
func (p CategoryPath) Subcategory() string {
	_, sub, _ := strings.Cut(string(p), "/")
	return sub
}

// Valid reports whether the path has exactly two non-empty segments that match
// the identifier grammar.
func (p CategoryPath) Valid() bool {
	domain, sub, ok := strings.Cut(string(p), "/")
	if !ok {
		return false
	}
	return segmentPattern.MatchString(domain) && segmentPattern.MatchString(sub)
}

// RequireMode selects all-of or any-of semantics for a requirement list
type RequireMode string

// Requirement modes
const (
	RequireAll RequireMode = "all"
	RequireAny RequireMode = "any"
)

// Requirement lists the skills an entry depends on
type Requirement struct {
	Mode   RequireMode `json:"mode" yaml:"mode"`
	Skills []SkillID   `json:"skills" yaml:"skills"`
	Reason string      `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Empty reports whether the requirement lists no skills
func (r Requirement) Empty() bool { return len(r.Skills) == 0 }

// Relation points at another skill with an optional human-readable reason
type Relation struct {
	ID     SkillID `json:"id" yaml:"id"`
	Reason string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Entry is one skill as loaded from a source
type Entry struct {
	ID             SkillID        `json:"id"`
	Source         string         `json:"source"`
	Name           string         `json:"name"`
	Category       CategoryPath   `json:"category"`
	Description    string         `json:"description"`
	Requires       Requirement    `json:"requires"`
	ConflictsWith  []Relation     `json:"conflictsWith,omitempty"`
	ExclusiveGroup CategoryPath   `json:"exclusiveGroup,omitempty"`
	Recommends     []Relation     `json:"recommends,omitempty"`
	Discourages    []Relation     `json:"discourages,omitempty"`
	Aliases        []SkillID      `json:"aliases,omitempty"`
	Content        string         `json:"content"`
	Path           string         `json:"path"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// References returns every skill id named by the entry's relation rules, in
// rule declaration order.
func (e *Entry) References() []SkillID {
	var refs []SkillID
	refs = append(refs, e.Requires.Skills...)
	for _, rel := range e.ConflictsWith {
		refs = append(refs, rel.ID)
	}
	for _, rel := range e.Recommends {
		refs = append(refs, rel.ID)
	}
	for _, rel := range e.Discourages {
		refs = append(refs, rel.ID)
	}
	return refs
}

// ConflictReason returns the reason the entry gives for conflicting with id
// and whether the entry declares the conflict at all.
func (e *Entry) ConflictReason(id SkillID) (string, bool) {
	for _, rel := range e.ConflictsWith {
		if rel.ID == id {
			return rel.Reason, true
		}
	}
	return "", false
}

// Category groups skills under a domain/subcategory path
type Category struct {
	Path        CategoryPath `json:"path" yaml:"path"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Exclusive   bool         `json:"exclusive" yaml:"exclusive"`
	Required    bool         `json:"required" yaml:"required"`
	Source      string       `json:"source,omitempty" yaml:"-"`
	Implicit    bool         `json:"implicit,omitempty" yaml:"-"`
}

// AgentDefinition is a named role whose compiled document draws content from
// a fixed list of skills.
type AgentDefinition struct {
	Name             string    `json:"name" yaml:"name"`
	Description      string    `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredSkillIDs []SkillID `json:"requiredSkillIds" yaml:"requiredSkillIds"`
	BodyTemplate     string    `json:"bodyTemplate" yaml:"bodyTemplate"`
	Source           string    `json:"source,omitempty" yaml:"-"`
	Path             string    `json:"path,omitempty" yaml:"-"`
}

// SourceInfo describes where a catalog came from
type SourceInfo struct {
	Name       string `json:"name"`
	Location   string `json:"location"`
	Normalized string `json:"normalized"`
	Remote     bool   `json:"remote"`
	Root       string `json:"root"`
}

// Warning is a recovered, non-fatal problem recorded during loading
type Warning struct {
	Source  string `json:"source"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Source + ": " + w.Message
	}
	return w.Source + ": " + w.Path + ": " + w.Message
}

// RawCatalog is the unmerged output of loading one source
type RawCatalog struct {
	Source     SourceInfo
	Entries    []*Entry
	Categories []Category
	Agents     []AgentDefinition
	Warnings   []Warning
}
