package compiler

import (
	"strings"

	"github.com/claude-collective/collective/pkg/catalog"
)

// controlSequences are the template delimiters neutralized in catalog and
// caller text. They are replaced with HTML numeric entities so the literal
// text survives in rendered markdown but is never parsed as a directive.
var controlSequences = strings.NewReplacer(
	"{{", "&#123;&#123;",
	"}}", "&#125;&#125;",
	"{%", "&#123;%",
	"%}", "%&#125;",
)

// Warning records a field whose text was altered before substitution
type Warning struct {
	Agent   string          `json:"agent"`
	Skill   catalog.SkillID `json:"skill,omitempty"`
	Field   string          `json:"field"`
	Message string          `json:"message"`
}

func (w Warning) String() string {
	if w.Skill == "" {
		return w.Agent + ": " + w.Field + ": " + w.Message
	}
	return w.Agent + ": " + string(w.Skill) + "." + w.Field + ": " + w.Message
}

// Sanitize neutralizes template control sequences in s and reports whether
// anything changed
func Sanitize(s string) (string, bool) {
	out := controlSequences.Replace(s)
	return out, out != s
}

type sanitizer struct {
	agent    string
	warnings []Warning
}

func (s *sanitizer) field(skill catalog.SkillID, field, value string) string {
	out, changed := Sanitize(value)
	if changed {
		s.warnings = append(s.warnings, Warning{
			Agent:   s.agent,
			Skill:   skill,
			Field:   field,
			Message: "template control sequences neutralized",
		})
	}
	return out
}
