// Package matrix merges loaded catalogs into a single read-only Matrix: the
// addressable set of skills, their aliases and the category tree. A Matrix is
// never modified after Merge returns and may be shared between goroutines.
package matrix

import (
	"encoding/json"

	"github.com/claude-collective/collective/pkg/catalog"
)

// Shadowed records an entry hidden by a higher precedence entry with the
// same id. Shadowed entries are kept for diagnostics only.
type Shadowed struct {
	ID     catalog.SkillID `json:"id"`
	Source string          `json:"source"`
	Path   string          `json:"path"`
	By     string          `json:"by"`
}

// DiagnosticKind classifies a non-fatal merge finding
type DiagnosticKind string

// Diagnostic kinds
const (
	DiagUnsatisfiable    DiagnosticKind = "unsatisfiable"
	DiagRequirementCycle DiagnosticKind = "requirement_cycle"
	DiagAliasShadowed    DiagnosticKind = "alias_shadowed"
)

// Diagnostic is a non-fatal finding about the merged catalog
type Diagnostic struct {
	Kind   DiagnosticKind  `json:"kind"`
	Skill  catalog.SkillID `json:"skill"`
	Source string          `json:"source"`
	Detail string          `json:"detail"`
}

// Matrix is the merged catalog
type Matrix struct {
	entries     []*catalog.Entry
	categories  []catalog.Category
	sources     []catalog.SourceInfo
	shadowed    []Shadowed
	diagnostics []Diagnostic

	byID       map[catalog.SkillID]int
	aliases    map[catalog.SkillID]catalog.SkillID
	categoryAt map[catalog.CategoryPath]int
	groups     map[catalog.CategoryPath][]catalog.SkillID
}

// Entries returns every entry sorted by id. Callers must not modify them.
func (m *Matrix) Entries() []*catalog.Entry { return m.entries }

// Categories returns the category tree sorted by path
func (m *Matrix) Categories() []catalog.Category { return m.categories }

// Sources returns the merged sources in precedence order
func (m *Matrix) Sources() []catalog.SourceInfo { return m.sources }

// Shadowed lists entries that lost an id collision
func (m *Matrix) Shadowed() []Shadowed { return m.shadowed }

// Diagnostics lists non-fatal findings such as unsatisfiable relation rules
func (m *Matrix) Diagnostics() []Diagnostic { return m.diagnostics }

// Len returns the number of entries
func (m *Matrix) Len() int { return len(m.entries) }

// Canonical maps an id or alias to the canonical id it names. Aliases are
// followed exactly one hop.
func (m *Matrix) Canonical(id catalog.SkillID) (catalog.SkillID, bool) {
	if _, ok := m.byID[id]; ok {
		return id, true
	}
	canonical, ok := m.aliases[id]
	return canonical, ok
}

// Lookup returns the entry named by id or one of its aliases
func (m *Matrix) Lookup(id catalog.SkillID) (*catalog.Entry, bool) {
	canonical, ok := m.Canonical(id)
	if !ok {
		return nil, false
	}
	return m.entries[m.byID[canonical]], true
}

// Index returns the position of a canonical id in matrix order
func (m *Matrix) Index(id catalog.SkillID) (int, bool) {
	i, ok := m.byID[id]
	return i, ok
}

// Aliases returns a copy of the alias to canonical id map
func (m *Matrix) Aliases() map[catalog.SkillID]catalog.SkillID {
	out := make(map[catalog.SkillID]catalog.SkillID, len(m.aliases))
	for k, v := range m.aliases {
		out[k] = v
	}
	return out
}

// Category returns the category definition for path
func (m *Matrix) Category(path catalog.CategoryPath) (catalog.Category, bool) {
	i, ok := m.categoryAt[path]
	if !ok {
		return catalog.Category{}, false
	}
	return m.categories[i], true
}

// Groups returns the exclusive groups an entry belongs to: its declared
// exclusiveGroup and, when its category is exclusive, the category itself.
func (m *Matrix) Groups(id catalog.SkillID) []catalog.CategoryPath {
	entry, ok := m.Lookup(id)
	if !ok {
		return nil
	}
	var groups []catalog.CategoryPath
	if entry.ExclusiveGroup != "" {
		groups = append(groups, entry.ExclusiveGroup)
	}
	if c, ok := m.Category(entry.Category); ok && c.Exclusive && entry.Category != entry.ExclusiveGroup {
		groups = append(groups, entry.Category)
	}
	return groups
}

// GroupMembers returns the members of an exclusive group in matrix order
func (m *Matrix) GroupMembers(group catalog.CategoryPath) []catalog.SkillID {
	return m.groups[group]
}

// CategoryMembers returns the ids of entries in a category, in matrix order
func (m *Matrix) CategoryMembers(path catalog.CategoryPath) []catalog.SkillID {
	var ids []catalog.SkillID
	for _, e := range m.entries {
		if e.Category == path {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// IDs returns every canonical id in matrix order
func (m *Matrix) IDs() []catalog.SkillID {
	ids := make([]catalog.SkillID, len(m.entries))
	for i, e := range m.entries {
		ids[i] = e.ID
	}
	return ids
}

type snapshot struct {
	Sources     []catalog.SourceInfo                       `json:"sources"`
	Entries     []*catalog.Entry                           `json:"entries"`
	Categories  []catalog.Category                         `json:"categories"`
	Aliases     map[catalog.SkillID]catalog.SkillID        `json:"aliases"`
	Groups      map[catalog.CategoryPath][]catalog.SkillID `json:"groups"`
	Shadowed    []Shadowed                                 `json:"shadowed"`
	Diagnostics []Diagnostic                               `json:"diagnostics"`
}

// MarshalJSON renders the whole matrix. Identical merge inputs produce
// identical bytes.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshot{
		Sources:     m.sources,
		Entries:     m.entries,
		Categories:  m.categories,
		Aliases:     m.aliases,
		Groups:      m.groups,
		Shadowed:    m.shadowed,
		Diagnostics: m.diagnostics,
	})
}
