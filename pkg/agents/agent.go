// Package agents loads agent definitions: named roles whose compiled document
// is rendered from a body template and a fixed list of required skills.
package agents

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/logger"
)

// DirName is the directory of a source tree holding agent definitions
const DirName = "agents"

const filePattern = "**/*.{md,yaml,yml}"

// skill list keys accepted in markdown frontmatter, in lookup order
var skillListKeys = []string{"requiredSkillIds", "required_skill_ids", "skills"}

// AgentProcessor loads agent definitions from local directories. Earlier
// directories take precedence over later ones.
type AgentProcessor struct {
	agentDirs []string
	source    string
}

// AgentProcessorOption configures an AgentProcessor
type AgentProcessorOption func(*AgentProcessor) error

// WithAgentDirs sets the agent directories, highest precedence first
func WithAgentDirs(dirs ...string) AgentProcessorOption {
	return func(ap *AgentProcessor) error {
		if len(dirs) == 0 {
			return errors.New("at least one agent directory must be specified")
		}
		ap.agentDirs = dirs
		return nil
	}
}

// WithDefaultDirs sets the default agent directories (./.collective/agents, ~/.collective/agents)
func WithDefaultDirs() AgentProcessorOption {
	return func(ap *AgentProcessor) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		ap.agentDirs = []string{
			filepath.Join(".collective", DirName),
			filepath.Join(homeDir, ".collective", DirName),
		}
		return nil
	}
}

// WithSourceName sets the source name recorded on loaded definitions
func WithSourceName(name string) AgentProcessorOption {
	return func(ap *AgentProcessor) error {
		ap.source = name
		return nil
	}
}

// NewAgentProcessor creates a new agent processor with optional configuration
func NewAgentProcessor(opts ...AgentProcessorOption) (*AgentProcessor, error) {
	ap := &AgentProcessor{source: "local"}

	for _, opt := range opts {
		if err := opt(ap); err != nil {
			return nil, errors.Wrap(err, "failed to apply agent processor option")
		}
	}

	if len(ap.agentDirs) == 0 {
		if err := WithDefaultDirs()(ap); err != nil {
			return nil, errors.Wrap(err, "failed to apply default agent directories")
		}
	}

	return ap, nil
}

// Dirs returns the configured directories in precedence order
func (ap *AgentProcessor) Dirs() []string { return ap.agentDirs }

func (ap *AgentProcessor) findAgentFile(name string) (string, error) {
	candidates := []string{name + ".md", name + ".yaml", name + ".yml"}

	for _, dir := range ap.agentDirs {
		for _, candidate := range candidates {
			fullPath := filepath.Join(dir, candidate)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", errors.Errorf("agent '%s' not found in directories: %v", name, ap.agentDirs)
}

// LoadAgent loads a single agent by name
func (ap *AgentProcessor) LoadAgent(ctx context.Context, name string) (catalog.AgentDefinition, error) {
	logger.G(ctx).WithField("agent", name).Debug("loading agent")

	agentPath, err := ap.findAgentFile(name)
	if err != nil {
		return catalog.AgentDefinition{}, err
	}
	return ParseFile(agentPath, ap.source)
}

// ListAgents returns every agent found in the configured directories. When
// two directories define the same name the earlier directory wins.
func (ap *AgentProcessor) ListAgents(ctx context.Context) ([]catalog.AgentDefinition, []catalog.Warning) {
	var lists [][]catalog.AgentDefinition
	var warnings []catalog.Warning

	for _, dir := range ap.agentDirs {
		if _, err := os.Stat(dir); err != nil {
			logger.G(ctx).WithField("dir", dir).Debug("agent directory not found, skipping")
			continue
		}
		defs, warns := LoadDir(ctx, dir, ap.source)
		lists = append(lists, defs)
		warnings = append(warnings, warns...)
	}

	merged, _ := Merge(lists...)
	logger.G(ctx).WithField("count", len(merged)).Debug("loaded agents")
	return merged, warnings
}

// LoadDir parses every agent definition below dir. Files that fail to parse
// are reported as warnings and skipped. Definitions are returned sorted by
// path; a name defined twice keeps its first definition.
func LoadDir(ctx context.Context, dir, source string) ([]catalog.AgentDefinition, []catalog.Warning) {
	matches, err := doublestar.Glob(os.DirFS(dir), filePattern)
	if err != nil {
		return nil, []catalog.Warning{{Source: source, Path: dir, Message: err.Error()}}
	}
	sort.Strings(matches)

	var defs []catalog.AgentDefinition
	var warnings []catalog.Warning
	seen := make(map[string]string)

	for _, rel := range matches {
		if strings.EqualFold(filepath.Base(rel), "README.md") {
			continue
		}
		fullPath := filepath.Join(dir, filepath.FromSlash(rel))

		def, err := ParseFile(fullPath, source)
		if err != nil {
			logger.G(ctx).WithField("path", fullPath).WithError(err).Warn("failed to load agent, skipping")
			warnings = append(warnings, catalog.Warning{Source: source, Path: rel, Message: err.Error()})
			continue
		}
		if first, ok := seen[def.Name]; ok {
			warnings = append(warnings, catalog.Warning{
				Source:  source,
				Path:    rel,
				Message: "agent " + def.Name + " already defined in " + first,
			})
			continue
		}
		seen[def.Name] = rel
		defs = append(defs, def)
	}

	return defs, warnings
}

// ParseFile reads a markdown or YAML agent definition
func ParseFile(path, source string) (catalog.AgentDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return catalog.AgentDefinition{}, errors.Wrapf(err, "failed to read agent file '%s'", path)
	}

	var def catalog.AgentDefinition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		def, err = ParseYAML(content)
	default:
		def, err = ParseMarkdown(string(content))
	}
	if err != nil {
		return catalog.AgentDefinition{}, errors.Wrapf(err, "invalid agent file '%s'", path)
	}

	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	def.Source = source
	def.Path = path

	if err := Validate(def); err != nil {
		return catalog.AgentDefinition{}, errors.Wrapf(err, "invalid agent file '%s'", path)
	}
	return def, nil
}

// ParseMarkdown reads an agent whose frontmatter holds the name, description
// and skill list and whose body is the template.
func ParseMarkdown(content string) (catalog.AgentDefinition, error) {
	data, body, err := catalog.SplitFrontmatter(content)
	if err != nil {
		return catalog.AgentDefinition{}, err
	}

	def := catalog.AgentDefinition{
		Name:         catalog.StringField(data, "name"),
		Description:  catalog.StringField(data, "description"),
		BodyTemplate: body,
	}
	for _, key := range skillListKeys {
		if _, ok := data[key]; !ok {
			continue
		}
		for _, id := range catalog.StringListField(data, key) {
			def.RequiredSkillIDs = append(def.RequiredSkillIDs, catalog.SkillID(id))
		}
		break
	}
	return def, nil
}

// ParseYAML reads an agent given as a YAML document with a bodyTemplate field
func ParseYAML(data []byte) (catalog.AgentDefinition, error) {
	var def catalog.AgentDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return catalog.AgentDefinition{}, errors.Wrap(err, "invalid yaml")
	}
	def.Name = strings.TrimSpace(def.Name)
	def.Description = strings.TrimSpace(def.Description)
	return def, nil
}

// Validate checks that a definition can be compiled
func Validate(def catalog.AgentDefinition) error {
	if def.Name == "" {
		return errors.New("agent name is required")
	}
	if !catalog.ValidAgentName(def.Name) {
		return errors.Errorf("invalid agent name %q: use lowercase letters, digits and hyphens", def.Name)
	}
	if strings.TrimSpace(def.BodyTemplate) == "" {
		return errors.New("agent body template cannot be empty")
	}
	for _, id := range def.RequiredSkillIDs {
		if !id.Valid() {
			return errors.Errorf("invalid required skill id %q", id)
		}
	}
	return nil
}
