package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/claude-collective/collective/pkg/agents"
	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/config"
	"github.com/claude-collective/collective/pkg/logger"
	"github.com/claude-collective/collective/pkg/matrix"
	"github.com/claude-collective/collective/pkg/presenter"
	"github.com/claude-collective/collective/pkg/source"
)

// errReported marks a failure whose details were already printed
var errReported = errors.New("command failed")

// workspace is the merged state every command works from
type workspace struct {
	Matrix         *matrix.Matrix
	Agents         []catalog.AgentDefinition
	AgentsShadowed []agents.Shadowed
	Warnings       []catalog.Warning
	// Dropped holds load and merge failures of sources skipped with --skip-invalid
	Dropped []error
}

// loadWorkspace loads every configured source, merges the catalogs and
// collects agent definitions. Local agent directories take precedence over
// agents shipped by sources, and sources keep their configured order.
func loadWorkspace(ctx context.Context, cfg *config.Config, skipInvalid bool) (*workspace, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("no sources configured: set sources in .collective/config.yaml or pass --source")
	}

	loader, err := source.NewLoader(cfg.LoaderOptions()...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create source loader")
	}

	ws := &workspace{}
	var raws []*catalog.RawCatalog
	var failed *multierror.Error
	for _, r := range loader.LoadAll(ctx, cfg.Sources) {
		if r.Err != nil {
			if !skipInvalid {
				failed = multierror.Append(failed, r.Err)
				continue
			}
			logger.G(ctx).WithError(r.Err).WithField("source", r.Spec.Location).Warn("skipping source that failed to load")
			ws.Dropped = append(ws.Dropped, r.Err)
			continue
		}
		raws = append(raws, r.Catalog)
		ws.Warnings = append(ws.Warnings, r.Catalog.Warnings...)
	}
	if err := failed.ErrorOrNil(); err != nil {
		return nil, err
	}

	if skipInvalid {
		m, dropped := matrix.MergeValid(ctx, raws...)
		for _, d := range dropped {
			ws.Dropped = append(ws.Dropped, d)
		}
		if m == nil {
			return nil, errors.New("no combination of sources could be merged")
		}
		ws.Matrix = m
		raws = merged(raws, m)
	} else {
		m, err := matrix.Merge(ctx, raws...)
		if err != nil {
			return nil, err
		}
		ws.Matrix = m
	}

	var opts []agents.AgentProcessorOption
	if len(cfg.AgentDirs) > 0 {
		opts = append(opts, agents.WithAgentDirs(cfg.AgentDirs...))
	}
	processor, err := agents.NewAgentProcessor(opts...)
	if err != nil {
		return nil, err
	}
	local, warnings := processor.ListAgents(ctx)
	ws.Warnings = append(ws.Warnings, warnings...)

	lists := [][]catalog.AgentDefinition{local}
	for _, raw := range raws {
		lists = append(lists, raw.Agents)
	}
	ws.Agents, ws.AgentsShadowed = agents.Merge(lists...)

	logger.G(ctx).WithField("skills", ws.Matrix.Len()).WithField("agents", len(ws.Agents)).Debug("workspace loaded")
	return ws, nil
}

// merged keeps the catalogs whose source made it into m
func merged(raws []*catalog.RawCatalog, m *matrix.Matrix) []*catalog.RawCatalog {
	kept := make(map[string]bool)
	for _, s := range m.Sources() {
		kept[s.Name] = true
	}
	var out []*catalog.RawCatalog
	for _, raw := range raws {
		if kept[raw.Source.Name] {
			out = append(out, raw)
		}
	}
	return out
}

// report prints the warnings and dropped sources of ws
func (ws *workspace) report(p *presenter.TerminalPresenter) {
	for _, err := range ws.Dropped {
		p.Error(err, "skipped source")
	}
	for _, w := range ws.Warnings {
		p.Warning(w.String())
	}
	for _, s := range ws.AgentsShadowed {
		p.Warning(fmt.Sprintf("agent %s from %s shadowed by %s", s.Name, s.Source, s.By))
	}
}
