package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/gobwas/glob"
	"github.com/sahilm/fuzzy"
	"go.opentelemetry.io/otel/attribute"

	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/logger"
	"github.com/claude-collective/collective/pkg/matrix"
	"github.com/claude-collective/collective/pkg/telemetry"
)

const maxSuggestions = 3

// Resolve evaluates sel against m. It never fails: every violated rule is
// reported in Result.Errors, in the order conflicts, unmet requirements,
// exclusivity violations, empty required categories.
func Resolve(ctx context.Context, m *matrix.Matrix, sel Selection) *Result {
	var result *Result
	telemetry.WithSpanFunc(ctx, "resolver.resolve", func(ctx context.Context) {
		r := newResolution(ctx, m, sel)
		r.canonicalize()
		r.closure()
		result = r.result()

		telemetry.SetAttributes(ctx,
			attribute.Int("resolver.active", len(r.order)),
			attribute.Int("resolver.errors", len(result.Errors)),
		)
	}, attribute.Int("resolver.selected", len(sel.Skills)))
	return result
}

type resolution struct {
	ctx      context.Context
	m        *matrix.Matrix
	sel      Selection
	disabled []glob.Glob

	selected []catalog.SkillID
	auto     []catalog.SkillID
	unknown  []Unknown
	active   map[catalog.SkillID]bool
	order    []catalog.SkillID
}

func newResolution(ctx context.Context, m *matrix.Matrix, sel Selection) *resolution {
	r := &resolution{
		ctx:    ctx,
		m:      m,
		sel:    sel,
		active: make(map[catalog.SkillID]bool),
	}
	for _, pattern := range sel.DisabledCategories {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			logger.G(ctx).WithField("pattern", pattern).WithError(err).Warn("invalid category pattern, matching it literally")
			g = glob.MustCompile(glob.QuoteMeta(pattern), '/')
		}
		r.disabled = append(r.disabled, g)
	}
	return r
}

// canonicalize maps selected ids and aliases to canonical ids, dropping
// duplicates and collecting unknown ids with suggestions.
func (r *resolution) canonicalize() {
	seenUnknown := make(map[catalog.SkillID]bool)
	for _, id := range r.sel.Skills {
		canonical, ok := r.m.Canonical(id)
		if !ok {
			if !seenUnknown[id] {
				seenUnknown[id] = true
				r.unknown = append(r.unknown, Unknown{ID: id, Suggestions: r.suggest(id)})
			}
			continue
		}
		if r.active[canonical] {
			continue
		}
		r.activate(canonical)
		r.selected = append(r.selected, canonical)
	}
}

func (r *resolution) suggest(id catalog.SkillID) []catalog.SkillID {
	ids := r.m.IDs()
	names := make([]string, len(ids))
	for i, candidate := range ids {
		names[i] = string(candidate)
	}

	var out []catalog.SkillID
	for _, match := range fuzzy.Find(string(id), names) {
		out = append(out, catalog.SkillID(match.Str))
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func (r *resolution) activate(id catalog.SkillID) {
	r.active[id] = true
	r.order = append(r.order, id)
}

// closure adds all-of requirements breadth first in selection order. A
// requirement is not added when it would conflict with the current
// selection, join an occupied exclusive group, or sit in a disabled
// category; it is then reported as unmet, naming what blocked it. Any-of
// requirements are never added.
func (r *resolution) closure() {
	queue := append([]catalog.SkillID(nil), r.selected...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		entry, _ := r.m.Lookup(id)
		if entry.Requires.Mode == catalog.RequireAny {
			continue
		}
		for _, ref := range entry.Requires.Skills {
			req, ok := r.m.Canonical(ref)
			if !ok || r.active[req] {
				continue
			}
			if reason, blocked := r.refuse(req); blocked {
				logger.G(r.ctx).WithFields(map[string]any{"skill": id, "requirement": req}).Debug("not auto-including requirement: " + reason)
				continue
			}
			r.activate(req)
			r.auto = append(r.auto, req)
			queue = append(queue, req)
		}
	}
}

func (r *resolution) refuse(id catalog.SkillID) (string, bool) {
	entry, _ := r.m.Lookup(id)
	if notes := r.disablements(entry); len(notes) > 0 {
		return notes[0].Reason, true
	}
	return "", false
}

// disablements returns the Disabled statuses that apply to entry under the
// current active set.
func (r *resolution) disablements(entry *catalog.Entry) []Status {
	var notes []Status
	if other, reason, ok := r.activeConflict(entry.ID); ok {
		msg := "conflicts with " + string(other)
		if reason != "" {
			msg += ": " + reason
		}
		notes = append(notes, Status{Kind: Disabled, Reason: msg})
	}
	if other, group, ok := r.groupOccupant(entry.ID); ok {
		notes = append(notes, Status{Kind: Disabled, Reason: fmt.Sprintf("%s already selected in exclusive group %s", other, group)})
	}
	if r.categoryDisabled(entry.Category) {
		notes = append(notes, Status{Kind: Disabled, Reason: "category " + string(entry.Category) + " is disabled"})
	}
	return notes
}

// activeConflict finds an active skill, other than id, that conflicts with
// id in either direction.
func (r *resolution) activeConflict(id catalog.SkillID) (catalog.SkillID, string, bool) {
	entry, _ := r.m.Lookup(id)
	for _, other := range r.order {
		if other == id {
			continue
		}
		if reason, ok := r.conflicts(entry, other); ok {
			return other, reason, true
		}
	}
	return "", "", false
}

// conflicts reports whether entry and other conflict. The reason is the
// first non-empty one declared on either side.
func (r *resolution) conflicts(entry *catalog.Entry, other catalog.SkillID) (string, bool) {
	var reason string
	found := false
	for _, rel := range entry.ConflictsWith {
		if c, ok := r.m.Canonical(rel.ID); ok && c == other {
			reason, found = rel.Reason, true
			break
		}
	}
	if found && reason != "" {
		return reason, true
	}
	if otherEntry, ok := r.m.Lookup(other); ok {
		for _, rel := range otherEntry.ConflictsWith {
			if c, ok := r.m.Canonical(rel.ID); ok && c == entry.ID {
				return rel.Reason, true
			}
		}
	}
	return reason, found
}

func (r *resolution) groupOccupant(id catalog.SkillID) (catalog.SkillID, catalog.CategoryPath, bool) {
	for _, group := range r.m.Groups(id) {
		for _, member := range r.m.GroupMembers(group) {
			if member != id && r.active[member] {
				return member, group, true
			}
		}
	}
	return "", "", false
}

func (r *resolution) categoryDisabled(path catalog.CategoryPath) bool {
	for _, g := range r.disabled {
		if g.Match(string(path)) {
			return true
		}
	}
	return false
}

func (r *resolution) result() *Result {
	res := &Result{
		Selection:    r.selected,
		AutoIncluded: r.auto,
		Unknown:      r.unknown,
		index:        make(map[catalog.SkillID]int, r.m.Len()),
	}
	if res.Selection == nil {
		res.Selection = []catalog.SkillID{}
	}
	if res.AutoIncluded == nil {
		res.AutoIncluded = []catalog.SkillID{}
	}

	res.Errors = append(res.Errors, r.conflictErrors()...)
	res.Errors = append(res.Errors, r.requirementErrors()...)
	res.Errors = append(res.Errors, r.exclusivityErrors()...)

	selected := make(map[catalog.SkillID]bool, len(r.selected))
	for _, id := range r.selected {
		selected[id] = true
	}
	for i, entry := range r.m.Entries() {
		skill := ResolvedSkill{
			Entry:        entry,
			ID:           entry.ID,
			Selected:     selected[entry.ID],
			AutoIncluded: r.active[entry.ID] && !selected[entry.ID],
			Notes:        r.annotate(entry),
			Status:       Status{Kind: Available},
		}
		if len(skill.Notes) > 0 {
			skill.Status = skill.Notes[0]
		}
		res.Skills = append(res.Skills, skill)
		res.index[entry.ID] = i
	}

	res.Errors = append(res.Errors, r.categoryErrors()...)
	if res.Errors == nil {
		res.Errors = []ValidationError{}
	}
	return res
}

// activeInMatrixOrder returns the active ids sorted by matrix position
func (r *resolution) activeInMatrixOrder() []catalog.SkillID {
	ids := append([]catalog.SkillID(nil), r.order...)
	sort.Slice(ids, func(i, j int) bool {
		a, _ := r.m.Index(ids[i])
		b, _ := r.m.Index(ids[j])
		return a < b
	})
	return ids
}

// annotate returns the statuses that apply to entry, highest priority first
func (r *resolution) annotate(entry *catalog.Entry) []Status {
	notes := r.disablements(entry)

	for _, id := range r.activeInMatrixOrder() {
		if id == entry.ID {
			continue
		}
		other, _ := r.m.Lookup(id)
		for _, rel := range other.Discourages {
			if c, ok := r.m.Canonical(rel.ID); ok && c == entry.ID {
				notes = append(notes, Status{Kind: Discouraged, Reason: advisory("discouraged by", id, rel.Reason)})
			}
		}
		if r.active[entry.ID] {
			continue
		}
		for _, rel := range other.Recommends {
			if c, ok := r.m.Canonical(rel.ID); ok && c == entry.ID {
				notes = append(notes, Status{Kind: Recommended, Reason: advisory("recommended by", id, rel.Reason)})
			}
		}
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Kind.priority() > notes[j].Kind.priority()
	})
	return notes
}

func advisory(prefix string, id catalog.SkillID, reason string) string {
	msg := prefix + " " + string(id)
	if reason != "" {
		msg += ": " + reason
	}
	return msg
}

// conflictErrors reports each conflicting active pair exactly once
func (r *resolution) conflictErrors() []ValidationError {
	var out []ValidationError
	ids := r.activeInMatrixOrder()
	for i, a := range ids {
		entry, _ := r.m.Lookup(a)
		for _, b := range ids[i+1:] {
			if reason, ok := r.conflicts(entry, b); ok {
				out = append(out, ValidationError{Kind: Conflict, Skills: []catalog.SkillID{a, b}, Reason: reason})
			}
		}
	}
	return out
}

func (r *resolution) requirementErrors() []ValidationError {
	var out []ValidationError
	for _, id := range r.activeInMatrixOrder() {
		entry, _ := r.m.Lookup(id)
		req := entry.Requires
		if req.Empty() {
			continue
		}

		var missing []catalog.SkillID
		var blocked []string
		satisfied := false
		for _, ref := range req.Skills {
			c, ok := r.m.Canonical(ref)
			if !ok {
				missing = append(missing, ref)
				continue
			}
			// an active requirement that is itself disabled does not count
			if reason, refused := r.refuse(c); refused {
				missing = append(missing, c)
				blocked = append(blocked, string(c)+" "+reason)
				continue
			}
			if r.active[c] {
				satisfied = true
				continue
			}
			missing = append(missing, c)
		}

		if req.Mode == catalog.RequireAny {
			if satisfied {
				continue
			}
		} else if len(missing) == 0 {
			continue
		}
		out = append(out, ValidationError{
			Kind:      UnmetRequirement,
			Skills:    []catalog.SkillID{id},
			Missing:   missing,
			Mode:      req.Mode,
			Reason:    req.Reason,
			BlockedBy: blocked,
		})
	}
	return out
}

func (r *resolution) exclusivityErrors() []ValidationError {
	groups := make(map[catalog.CategoryPath][]catalog.SkillID)
	for _, id := range r.activeInMatrixOrder() {
		for _, group := range r.m.Groups(id) {
			groups[group] = append(groups[group], id)
		}
	}

	paths := make([]catalog.CategoryPath, 0, len(groups))
	for path, members := range groups {
		if len(members) > 1 {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	out := make([]ValidationError, 0, len(paths))
	for _, path := range paths {
		out = append(out, ValidationError{Kind: ExclusivityViolation, Skills: groups[path], Category: path})
	}
	return out
}

func (r *resolution) categoryErrors() []ValidationError {
	var out []ValidationError
	seen := make(map[catalog.CategoryPath]bool)
	for _, path := range r.sel.EnteredCategories {
		if seen[path] {
			continue
		}
		seen[path] = true

		c, ok := r.m.Category(path)
		if !ok || !c.Required {
			continue
		}
		empty := true
		for _, id := range r.m.CategoryMembers(path) {
			if r.active[id] {
				empty = false
				break
			}
		}
		if empty {
			out = append(out, ValidationError{Kind: EmptyRequiredCategory, Category: path})
		}
	}
	return out
}
