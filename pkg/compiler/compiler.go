// Package compiler renders agent definitions against a resolved selection.
// Skill content is sanitized before substitution so catalog text can never
// inject template directives.
package compiler

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"

	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/logger"
	"github.com/claude-collective/collective/pkg/matrix"
	"github.com/claude-collective/collective/pkg/resolver"
	"github.com/claude-collective/collective/pkg/telemetry"
)

// ErrorKind classifies a compile failure
type ErrorKind string

// TemplateError is a malformed or failing agent template
const TemplateError ErrorKind = "template_error"

// CompileError is a failure to compile one agent document
type CompileError struct {
	Kind   ErrorKind
	Agent  string
	Detail string
	Err    error
}

func (e *CompileError) Error() string {
	return "compile " + e.Agent + " (" + string(e.Kind) + "): " + e.Detail
}

func (e *CompileError) Unwrap() error { return e.Err }

// Provenance names a skill whose content went into a document
type Provenance struct {
	Skill  catalog.SkillID `json:"skill"`
	Source string          `json:"source"`
}

// Document is a compiled agent document
type Document struct {
	Agent      string       `json:"agent"`
	Content    string       `json:"content"`
	Provenance []Provenance `json:"provenance"`
	Warnings   []Warning    `json:"warnings,omitempty"`
}

// AgentData is the agent as seen by templates
type AgentData struct {
	Name        string
	Description string
}

// SkillData is a skill as seen by templates. All text fields are sanitized.
type SkillData struct {
	ID          string
	Name        string
	Description string
	Category    string
	Source      string
	Content     string
}

// TemplateData is the value agent templates execute against
type TemplateData struct {
	Agent  AgentData
	Skills []SkillData
}

var funcMap = template.FuncMap{
	"join": strings.Join,
	"trim": strings.TrimSpace,
	"indent": func(n int, s string) string {
		pad := strings.Repeat(" ", n)
		return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
	},
}

// Compile renders one agent. Only skills that are in the agent's required
// list, active in res and not disabled contribute content; the selection is
// not validated again.
func Compile(ctx context.Context, agent catalog.AgentDefinition, res *resolver.Result, m *matrix.Matrix) (*Document, error) {
	var doc *Document
	err := telemetry.WithSpan(ctx, "compiler.compile", func(ctx context.Context) error {
		var err error
		doc, err = compile(ctx, agent, res, m)
		return err
	}, attribute.String("agent.name", agent.Name))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func compile(ctx context.Context, agent catalog.AgentDefinition, res *resolver.Result, m *matrix.Matrix) (*Document, error) {
	log := logger.G(ctx).WithField("agent", agent.Name)
	s := &sanitizer{agent: agent.Name}

	data := TemplateData{
		Agent: AgentData{
			Name:        s.field("", "name", agent.Name),
			Description: s.field("", "description", agent.Description),
		},
	}

	doc := &Document{Agent: agent.Name, Provenance: []Provenance{}}
	seen := make(map[catalog.SkillID]bool)
	for _, ref := range agent.RequiredSkillIDs {
		id, ok := m.Canonical(ref)
		if !ok {
			log.WithField("skill", ref).Debug("required skill not in matrix")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		resolved, ok := res.Lookup(id)
		if !ok || !resolved.Active() || resolved.Status.Kind == resolver.Disabled {
			log.WithField("skill", id).Debug("required skill not selected, omitting")
			continue
		}

		e := resolved.Entry
		data.Skills = append(data.Skills, SkillData{
			ID:          string(e.ID),
			Name:        s.field(e.ID, "name", e.Name),
			Description: s.field(e.ID, "description", e.Description),
			Category:    string(e.Category),
			Source:      e.Source,
			Content:     s.field(e.ID, "content", e.Content),
		})
		doc.Provenance = append(doc.Provenance, Provenance{Skill: e.ID, Source: e.Source})
	}

	for _, w := range s.warnings {
		log.WithFields(map[string]any{"skill": w.Skill, "field": w.Field}).Warn(w.Message)
	}
	doc.Warnings = s.warnings

	tmpl, err := template.New(agent.Name).Option("missingkey=error").Funcs(funcMap).Parse(agent.BodyTemplate)
	if err != nil {
		return nil, &CompileError{Kind: TemplateError, Agent: agent.Name, Detail: err.Error(), Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, &CompileError{Kind: TemplateError, Agent: agent.Name, Detail: err.Error(), Err: err}
	}
	doc.Content = buf.String()
	return doc, nil
}

// Batch is the outcome of compiling several agents
type Batch struct {
	ID        string          `json:"id"`
	Documents []*Document     `json:"documents"`
	Failures  []*CompileError `json:"-"`
}

// Err combines the batch failures, or returns nil when every agent compiled
func (b *Batch) Err() error {
	var result *multierror.Error
	for _, f := range b.Failures {
		result = multierror.Append(result, f)
	}
	return result.ErrorOrNil()
}

// CompileAll compiles every agent. A template failure affects only its own
// document; the remaining agents are still compiled.
func CompileAll(ctx context.Context, agents []catalog.AgentDefinition, res *resolver.Result, m *matrix.Matrix) *Batch {
	batch := &Batch{ID: uuid.NewString(), Documents: []*Document{}}
	ctx = logger.WithFields(ctx, map[string]any{"batch": batch.ID})

	for _, agent := range agents {
		doc, err := Compile(ctx, agent, res, m)
		if err != nil {
			ce, ok := err.(*CompileError)
			if !ok {
				ce = &CompileError{Kind: TemplateError, Agent: agent.Name, Detail: err.Error(), Err: err}
			}
			logger.G(ctx).WithField("agent", agent.Name).WithError(err).Warn("failed to compile agent")
			batch.Failures = append(batch.Failures, ce)
			continue
		}
		batch.Documents = append(batch.Documents, doc)
	}

	logger.G(ctx).WithFields(map[string]any{
		"documents": len(batch.Documents),
		"failures":  len(batch.Failures),
	}).Debug("compiled agents")
	return batch
}
