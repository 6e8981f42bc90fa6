package catalog

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MetadataFileName is the per-skill metadata document inside a source tree
const MetadataFileName = "metadata.yaml"

// Limits bounds the cost of parsing a single metadata document
type Limits struct {
	MaxBytes int
	MaxDepth int
}

// DefaultLimits are applied when a loader is not configured otherwise
var DefaultLimits = Limits{
	MaxBytes: 64 << 10,
	MaxDepth: 8,
}

// ErrSizeExceeded is returned when a document is larger than Limits.MaxBytes
var ErrSizeExceeded = errors.New("document exceeds size limit")

// Metadata is the on-disk shape of a skill metadata document
type Metadata struct {
	ID             string      `yaml:"id" json:"id" jsonschema:"required,description=Unique skill identifier"`
	Name           string      `yaml:"name,omitempty" json:"name,omitempty" jsonschema:"description=Display name"`
	Category       string      `yaml:"category" json:"category" jsonschema:"required,description=domain/subcategory path"`
	Description    string      `yaml:"description" json:"description" jsonschema:"required"`
	Requires       Requirement `yaml:"requires,omitempty" json:"requires,omitempty"`
	ConflictsWith  []Relation  `yaml:"conflictsWith,omitempty" json:"conflictsWith,omitempty"`
	ExclusiveGroup string      `yaml:"exclusiveGroup,omitempty" json:"exclusiveGroup,omitempty"`
	Recommends     []Relation  `yaml:"recommends,omitempty" json:"recommends,omitempty"`
	Discourages    []Relation  `yaml:"discourages,omitempty" json:"discourages,omitempty"`
	Aliases        []string    `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

var knownFields = map[string]bool{
	"id":             true,
	"name":           true,
	"category":       true,
	"description":    true,
	"requires":       true,
	"conflictsWith":  true,
	"exclusiveGroup": true,
	"recommends":     true,
	"discourages":    true,
	"aliases":        true,
}

// UnmarshalYAML accepts either a plain list of ids (all-of) or a mapping with
// mode, skills and reason keys.
func (r *Requirement) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var ids []SkillID
		if err := node.Decode(&ids); err != nil {
			return err
		}
		*r = Requirement{Mode: RequireAll, Skills: ids}
		return nil
	}

	type plain Requirement
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	if p.Mode == "" {
		p.Mode = RequireAll
	}
	if p.Mode != RequireAll && p.Mode != RequireAny {
		return errors.Errorf("line %d: requires.mode must be %q or %q, got %q", node.Line, RequireAll, RequireAny, p.Mode)
	}
	*r = Requirement(p)
	return nil
}

// UnmarshalYAML accepts either a bare id or a mapping with id and reason keys
func (r *Relation) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = Relation{ID: SkillID(node.Value)}
		return nil
	}

	type plain Relation
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Relation(p)
	return nil
}

// ParseMetadata decodes a metadata document into an Entry. Fields the schema
// does not know are kept in Entry.Extra and their names returned so the caller
// can report them.
func ParseMetadata(data []byte, limits Limits) (*Entry, []string, error) {
	if limits.MaxBytes > 0 && len(data) > limits.MaxBytes {
		return nil, nil, errors.Wrapf(ErrSizeExceeded, "%d bytes > %d", len(data), limits.MaxBytes)
	}

	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, nil, errors.Wrap(err, "invalid yaml")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil, errors.New("empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, errors.Errorf("line %d: metadata must be a mapping", root.Line)
	}
	if err := checkDepth(root, 1, limits.MaxDepth); err != nil {
		return nil, nil, err
	}

	var meta Metadata
	if err := root.Decode(&meta); err != nil {
		return nil, nil, errors.Wrap(err, "invalid metadata")
	}

	var unknown []string
	extra := map[string]any{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if knownFields[key] {
			continue
		}
		var v any
		if err := root.Content[i+1].Decode(&v); err != nil {
			return nil, nil, errors.Wrapf(err, "field %q", key)
		}
		extra[key] = v
		unknown = append(unknown, key)
	}
	if len(extra) == 0 {
		extra = nil
	}

	entry, err := meta.toEntry()
	if err != nil {
		return nil, nil, err
	}
	entry.Extra = extra
	return entry, unknown, nil
}

func (m Metadata) toEntry() (*Entry, error) {
	var missing []string
	if strings.TrimSpace(m.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(m.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(m.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}

	id := SkillID(m.ID)
	if !id.Valid() {
		return nil, errors.Errorf("invalid skill id %q", m.ID)
	}

	entry := &Entry{
		ID:             id,
		Name:           strings.TrimSpace(m.Name),
		Category:       CategoryPath(m.Category),
		Description:    strings.TrimSpace(m.Description),
		Requires:       m.Requires,
		ConflictsWith:  m.ConflictsWith,
		ExclusiveGroup: CategoryPath(m.ExclusiveGroup),
		Recommends:     m.Recommends,
		Discourages:    m.Discourages,
	}
	if entry.Requires.Mode == "" {
		entry.Requires.Mode = RequireAll
	}

	for _, ref := range entry.References() {
		if ref == "" {
			return nil, errors.New("relation rule references an empty id")
		}
	}
	for _, alias := range m.Aliases {
		a := SkillID(alias)
		if !a.Valid() {
			return nil, errors.Errorf("invalid alias %q", alias)
		}
		if a == id {
			return nil, errors.Errorf("alias %q repeats the skill id", alias)
		}
		entry.Aliases = append(entry.Aliases, a)
	}
	return entry, nil
}

func checkDepth(node *yaml.Node, depth, max int) error {
	if node.Kind == yaml.AliasNode {
		return errors.Errorf("line %d: yaml aliases are not allowed in metadata", node.Line)
	}
	if node.Kind != yaml.MappingNode && node.Kind != yaml.SequenceNode {
		return nil
	}
	if max > 0 && depth > max {
		return errors.Errorf("line %d: nesting depth exceeds %d", node.Line, max)
	}
	for _, child := range node.Content {
		if err := checkDepth(child, depth+1, max); err != nil {
			return err
		}
	}
	return nil
}

// ParseCategories decodes a categories document: a list of category
// definitions, or a mapping with a "categories" key holding that list.
func ParseCategories(data []byte, limits Limits) ([]Category, error) {
	if limits.MaxBytes > 0 && len(data) > limits.MaxBytes*4 {
		return nil, errors.Wrapf(ErrSizeExceeded, "%d bytes > %d", len(data), limits.MaxBytes*4)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "invalid yaml")
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if err := checkDepth(root, 1, limits.MaxDepth); err != nil {
		return nil, err
	}

	var categories []Category
	if root.Kind == yaml.MappingNode {
		var wrapped struct {
			Categories []Category `yaml:"categories"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, errors.Wrap(err, "invalid categories")
		}
		categories = wrapped.Categories
	} else if err := root.Decode(&categories); err != nil {
		return nil, errors.Wrap(err, "invalid categories")
	}

	for i, c := range categories {
		if c.Path == "" {
			return nil, errors.Errorf("category #%d has no path", i+1)
		}
	}
	return categories, nil
}
