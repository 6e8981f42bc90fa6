// Package resolver evaluates a candidate skill selection against a merged
// matrix. Resolution is stateless: every call recomputes the dependency
// closure, the per-skill status annotations and the validation errors.
package resolver

import (
	"fmt"
	"strings"

	"github.com/claude-collective/collective/pkg/catalog"
)

// Selection is the caller's candidate selection
type Selection struct {
	// Skills are ids or aliases in the order the caller picked them
	Skills []catalog.SkillID `json:"skills" mapstructure:"skills"`
	// EnteredCategories are categories the caller has visited; a required
	// category only reports emptiness once entered
	EnteredCategories []catalog.CategoryPath `json:"enteredCategories,omitempty" mapstructure:"entered_categories"`
	// DisabledCategories are glob patterns such as "mobile/*" over category
	// paths whose skills are all disabled
	DisabledCategories []string `json:"disabledCategories,omitempty" mapstructure:"disabled_categories"`
}

// StatusKind is the advisory state of a skill for one selection
type StatusKind string

// Status kinds, lowest priority first
const (
	Available   StatusKind = "available"
	Recommended StatusKind = "recommended"
	Discouraged StatusKind = "discouraged"
	Disabled    StatusKind = "disabled"
)

func (k StatusKind) priority() int {
	switch k {
	case Disabled:
		return 3
	case Discouraged:
		return 2
	case Recommended:
		return 1
	default:
		return 0
	}
}

// Status is a status kind with the reason it applies
type Status struct {
	Kind   StatusKind `json:"kind"`
	Reason string     `json:"reason,omitempty"`
}

func (s Status) String() string {
	if s.Reason == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ": " + s.Reason
}

// ResolvedSkill is a matrix entry annotated for one selection
type ResolvedSkill struct {
	Entry        *catalog.Entry  `json:"-"`
	ID           catalog.SkillID `json:"id"`
	Selected     bool            `json:"selected"`
	AutoIncluded bool            `json:"autoIncluded,omitempty"`
	// Status is the highest priority annotation
	Status Status `json:"status"`
	// Notes holds every annotation that applies, highest priority first
	Notes []Status `json:"notes,omitempty"`
}

// Active reports whether the skill is part of the resolved selection
func (r ResolvedSkill) Active() bool { return r.Selected || r.AutoIncluded }

// ErrorKind classifies a validation error
type ErrorKind string

// Validation error kinds
const (
	Conflict              ErrorKind = "conflict"
	UnmetRequirement      ErrorKind = "unmet_requirement"
	ExclusivityViolation  ErrorKind = "exclusivity_violation"
	EmptyRequiredCategory ErrorKind = "empty_required_category"
)

// ValidationError is a rule violated by the resolved selection. It is
// reported in the Result, never returned as a Go error by Resolve.
type ValidationError struct {
	Kind ErrorKind `json:"kind"`
	// Skills names the offending ids: the conflicting pair, the skill with an
	// unmet requirement, or the members of an exclusive group
	Skills []catalog.SkillID `json:"skills,omitempty"`
	// Missing lists the unmet requirement ids
	Missing  []catalog.SkillID    `json:"missing,omitempty"`
	Mode     catalog.RequireMode  `json:"mode,omitempty"`
	Category catalog.CategoryPath `json:"category,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	// BlockedBy explains, per missing id, why it is disabled for this selection
	BlockedBy []string `json:"blockedBy,omitempty"`
}

func (e ValidationError) Error() string {
	var msg string
	switch e.Kind {
	case Conflict:
		msg = fmt.Sprintf("%s conflicts with %s", e.Skills[0], e.Skills[1])
	case UnmetRequirement:
		quantifier := "all of"
		if e.Mode == catalog.RequireAny {
			quantifier = "one of"
		}
		msg = fmt.Sprintf("%s requires %s %s", e.Skills[0], quantifier, joinIDs(e.Missing))
	case ExclusivityViolation:
		msg = fmt.Sprintf("only one of %s may be selected in %s", joinIDs(e.Skills), e.Category)
	case EmptyRequiredCategory:
		msg = fmt.Sprintf("required category %s has no selected skill", e.Category)
	default:
		msg = string(e.Kind)
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if len(e.BlockedBy) > 0 {
		msg += ": " + strings.Join(e.BlockedBy, "; ")
	}
	return msg
}

// Blocking reports whether the error prevents compiling the selection
func (e ValidationError) Blocking() bool {
	return e.Kind != EmptyRequiredCategory
}

// Unknown is a selected id that names no skill, with close matches
type Unknown struct {
	ID          catalog.SkillID   `json:"id"`
	Suggestions []catalog.SkillID `json:"suggestions,omitempty"`
}

// Result is the outcome of resolving one selection
type Result struct {
	// Selection holds the canonical ids the caller selected
	Selection []catalog.SkillID `json:"selection"`
	// AutoIncluded holds ids added by dependency closure, in inclusion order
	AutoIncluded []catalog.SkillID `json:"autoIncluded"`
	Skills       []ResolvedSkill   `json:"skills"`
	Errors       []ValidationError `json:"errors"`
	Unknown      []Unknown         `json:"unknown,omitempty"`

	index map[catalog.SkillID]int
}

// Lookup returns the resolved view of a canonical id
func (r *Result) Lookup(id catalog.SkillID) (ResolvedSkill, bool) {
	i, ok := r.index[id]
	if !ok {
		return ResolvedSkill{}, false
	}
	return r.Skills[i], true
}

// Active returns the selected and auto-included ids
func (r *Result) Active() []catalog.SkillID {
	out := make([]catalog.SkillID, 0, len(r.Selection)+len(r.AutoIncluded))
	out = append(out, r.Selection...)
	return append(out, r.AutoIncluded...)
}

// Blocking returns the errors that prevent compilation
func (r *Result) Blocking() []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.Blocking() {
			out = append(out, e)
		}
	}
	return out
}

// Valid reports whether the selection has no blocking errors
func (r *Result) Valid() bool { return len(r.Blocking()) == 0 }

func joinIDs(ids []catalog.SkillID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
