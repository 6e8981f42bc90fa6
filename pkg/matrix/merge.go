package matrix

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"

	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/logger"
	"github.com/claude-collective/collective/pkg/telemetry"
)

// Merge combines catalogs given in precedence order, highest first. On an id
// collision the higher precedence entry wins entirely and the loser is
// recorded as shadowed. Merge fails with a *multierror.Error of
// *catalog.MergeError values when an alias collides with an id or a category
// reference is malformed or dangling.
func Merge(ctx context.Context, catalogs ...*catalog.RawCatalog) (*Matrix, error) {
	var m *Matrix
	err := telemetry.WithSpan(ctx, "matrix.merge", func(ctx context.Context) error {
		var err error
		m, err = merge(ctx, catalogs)
		if err == nil {
			telemetry.SetAttributes(ctx,
				attribute.Int("matrix.entries", len(m.entries)),
				attribute.Int("matrix.shadowed", len(m.shadowed)),
			)
		}
		return err
	}, attribute.Int("matrix.sources", len(catalogs)))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MergeValid merges catalogs, dropping every source that causes a merge error
// and merging the rest again until the merge succeeds. It returns the errors
// of the dropped sources.
func MergeValid(ctx context.Context, catalogs ...*catalog.RawCatalog) (*Matrix, []*catalog.MergeError) {
	var dropped []*catalog.MergeError
	remaining := catalogs

	for {
		m, err := Merge(ctx, remaining...)
		if err == nil {
			return m, dropped
		}

		errs := MergeErrors(err)
		bad := make(map[string]bool)
		for _, me := range errs {
			bad[me.Source] = true
		}

		var next []*catalog.RawCatalog
		for _, raw := range remaining {
			if bad[raw.Source.Name] {
				logger.G(ctx).WithField("source", raw.Source.Name).Warn("dropping source that failed to merge")
				continue
			}
			next = append(next, raw)
		}
		dropped = append(dropped, errs...)
		if len(next) == len(remaining) {
			// errors that name no remaining source cannot be fixed by dropping
			return nil, dropped
		}
		remaining = next
	}
}

// MergeErrors extracts the merge errors carried by err
func MergeErrors(err error) []*catalog.MergeError {
	var out []*catalog.MergeError
	if merr, ok := err.(*multierror.Error); ok {
		for _, e := range merr.Errors {
			if me, ok := e.(*catalog.MergeError); ok {
				out = append(out, me)
			}
		}
		return out
	}
	if me, ok := err.(*catalog.MergeError); ok {
		out = append(out, me)
	}
	return out
}

type owner struct {
	entry *catalog.Entry
	rank  int
}

func merge(ctx context.Context, catalogs []*catalog.RawCatalog) (*Matrix, error) {
	m := &Matrix{
		byID:       make(map[catalog.SkillID]int),
		aliases:    make(map[catalog.SkillID]catalog.SkillID),
		categoryAt: make(map[catalog.CategoryPath]int),
		groups:     make(map[catalog.CategoryPath][]catalog.SkillID),
	}
	var result *multierror.Error
	fail := func(kind catalog.MergeErrorKind, skill catalog.SkillID, source, format string, args ...any) {
		result = multierror.Append(result, &catalog.MergeError{
			Kind:   kind,
			Skill:  skill,
			Source: source,
			Detail: fmt.Sprintf(format, args...),
		})
	}

	// entries: first definition in precedence order wins
	owners := make(map[catalog.SkillID]owner)
	for rank, raw := range catalogs {
		m.sources = append(m.sources, raw.Source)
		for _, e := range raw.Entries {
			if winner, ok := owners[e.ID]; ok {
				m.shadowed = append(m.shadowed, Shadowed{ID: e.ID, Source: e.Source, Path: e.Path, By: winner.entry.Source})
				logger.G(ctx).WithFields(map[string]any{"skill": e.ID, "source": e.Source, "by": winner.entry.Source}).Debug("entry shadowed")
				continue
			}
			owners[e.ID] = owner{entry: e, rank: rank}
		}
	}

	for _, o := range owners {
		m.entries = append(m.entries, o.entry)
	}
	sort.Slice(m.entries, func(i, j int) bool { return m.entries[i].ID < m.entries[j].ID })
	for i, e := range m.entries {
		m.byID[e.ID] = i
	}

	// categories: declared ones first, then implicit ones for unknown paths
	declared := make(map[catalog.CategoryPath]catalog.Category)
	for _, raw := range catalogs {
		for _, c := range raw.Categories {
			if !c.Path.Valid() {
				fail(catalog.MergeDanglingReference, "", raw.Source.Name, "malformed category path %q", c.Path)
				continue
			}
			if _, ok := declared[c.Path]; ok {
				continue
			}
			declared[c.Path] = c
		}
	}
	for _, e := range m.entries {
		if !e.Category.Valid() {
			fail(catalog.MergeDanglingReference, e.ID, e.Source, "malformed category path %q", e.Category)
			continue
		}
		if _, ok := declared[e.Category]; !ok {
			declared[e.Category] = catalog.Category{Path: e.Category, Source: e.Source, Implicit: true}
		}
	}
	for _, c := range declared {
		m.categories = append(m.categories, c)
	}
	sort.Slice(m.categories, func(i, j int) bool { return m.categories[i].Path < m.categories[j].Path })
	for i, c := range m.categories {
		m.categoryAt[c.Path] = i
	}

	for _, e := range m.entries {
		if e.ExclusiveGroup == "" {
			continue
		}
		if !e.ExclusiveGroup.Valid() {
			fail(catalog.MergeDanglingReference, e.ID, e.Source, "malformed exclusive group %q", e.ExclusiveGroup)
			continue
		}
		if _, ok := m.categoryAt[e.ExclusiveGroup]; !ok {
			fail(catalog.MergeDanglingReference, e.ID, e.Source, "exclusive group %q names no category", e.ExclusiveGroup)
		}
	}

	// aliases: one hop, never shadowing a canonical id
	aliasOwner := make(map[catalog.SkillID]owner)
	for _, e := range m.entries {
		for _, alias := range e.Aliases {
			if target, ok := m.byID[alias]; ok {
				fail(catalog.MergeAliasCycle, e.ID, e.Source, "alias %q is the id of skill %q", alias, m.entries[target].ID)
				continue
			}
			current := owners[e.ID]
			if prev, ok := aliasOwner[alias]; ok {
				winner, loser := prev, current
				if current.rank < prev.rank {
					winner, loser = current, prev
				}
				aliasOwner[alias] = winner
				m.diagnostics = append(m.diagnostics, Diagnostic{
					Kind:   DiagAliasShadowed,
					Skill:  loser.entry.ID,
					Source: loser.entry.Source,
					Detail: fmt.Sprintf("alias %q already claimed by %q", alias, winner.entry.ID),
				})
				continue
			}
			aliasOwner[alias] = current
		}
	}
	for alias, o := range aliasOwner {
		m.aliases[alias] = o.entry.ID
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	for _, e := range m.entries {
		for _, group := range m.Groups(e.ID) {
			m.groups[group] = append(m.groups[group], e.ID)
		}
	}

	m.diagnostics = append(m.diagnostics, m.unsatisfiable()...)
	m.diagnostics = append(m.diagnostics, m.requirementCycles()...)
	for _, d := range m.diagnostics {
		logger.G(ctx).WithFields(map[string]any{"skill": d.Skill, "source": d.Source, "kind": d.Kind}).Warn(d.Detail)
	}

	return m, nil
}

// unsatisfiable reports relation rules naming ids that resolve to no entry
func (m *Matrix) unsatisfiable() []Diagnostic {
	var out []Diagnostic
	for _, e := range m.entries {
		for _, ref := range e.References() {
			if _, ok := m.Canonical(ref); ok {
				continue
			}
			out = append(out, Diagnostic{
				Kind:   DiagUnsatisfiable,
				Skill:  e.ID,
				Source: e.Source,
				Detail: fmt.Sprintf("relation rule references unknown skill %q", ref),
			})
		}
	}
	return out
}

// requirementCycles walks the requirement graph with a visited set and
// reports every back edge as a cycle.
func (m *Matrix) requirementCycles() []Diagnostic {
	const (
		white = iota
		grey
		black
	)
	color := make(map[catalog.SkillID]int, len(m.entries))
	var stack []catalog.SkillID
	var out []Diagnostic

	var visit func(id catalog.SkillID)
	visit = func(id catalog.SkillID) {
		color[id] = grey
		stack = append(stack, id)

		entry := m.entries[m.byID[id]]
		for _, ref := range entry.Requires.Skills {
			next, ok := m.Canonical(ref)
			if !ok {
				continue
			}
			switch color[next] {
			case white:
				visit(next)
			case grey:
				start := 0
				for i, s := range stack {
					if s == next {
						start = i
						break
					}
				}
				cycle := make([]string, 0, len(stack)-start+1)
				for _, s := range stack[start:] {
					cycle = append(cycle, string(s))
				}
				cycle = append(cycle, string(next))
				out = append(out, Diagnostic{
					Kind:   DiagRequirementCycle,
					Skill:  id,
					Source: entry.Source,
					Detail: "requirement cycle: " + strings.Join(cycle, " -> "),
				})
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, e := range m.entries {
		if color[e.ID] == white {
			visit(e.ID)
		}
	}
	return out
}
