package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/claude-collective/collective/pkg/presenter"
)

type SourcesConfig struct {
	SkipInvalid bool
	JSON        bool
}

func NewSourcesConfig() *SourcesConfig {
	return &SourcesConfig{}
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Load and merge the configured sources",
	Long: `Load every configured source, merge them in precedence order and report
what the merged matrix contains: skill and category counts, entries shadowed by
higher precedence sources, load warnings and merge diagnostics.

Examples:
  collective sources --source ./skills --source github:acme/skills
  collective sources --skip-invalid
  collective sources --json > matrix.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSources(cmd, getSourcesConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewSourcesConfig()
	sourcesCmd.Flags().Bool("skip-invalid", defaults.SkipInvalid, "drop sources that fail to load or merge instead of failing")
	sourcesCmd.Flags().Bool("json", defaults.JSON, "print the merged matrix as JSON")
}

func getSourcesConfigFromFlags(cmd *cobra.Command) *SourcesConfig {
	config := NewSourcesConfig()
	config.SkipInvalid, _ = cmd.Flags().GetBool("skip-invalid")
	config.JSON, _ = cmd.Flags().GetBool("json")
	return config
}

func runSources(cmd *cobra.Command, config *SourcesConfig) error {
	ctx := cmd.Context()
	p := presenter.Default()

	ws, err := loadWorkspace(ctx, cfg, config.SkipInvalid)
	if err != nil {
		return err
	}

	if config.JSON {
		out, err := json.MarshalIndent(ws.Matrix, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal matrix")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	m := ws.Matrix
	p.Section("Sources")
	for _, s := range m.Sources() {
		kind := "local"
		if s.Remote {
			kind = "remote"
		}
		p.Info(fmt.Sprintf("%s\t%s (%s)", s.Name, s.Normalized, kind))
	}
	p.Info("")
	p.Info(fmt.Sprintf("%d skills, %d categories, %d agents", m.Len(), len(m.Categories()), len(ws.Agents)))

	for _, s := range m.Shadowed() {
		p.Warning(fmt.Sprintf("skill %s from %s shadowed by %s", s.ID, s.Source, s.By))
	}
	for _, d := range m.Diagnostics() {
		p.Warning(fmt.Sprintf("%s: %s", d.Kind, d.Detail))
	}
	ws.report(p)

	if len(ws.Dropped) > 0 {
		p.Warning(fmt.Sprintf("%d source(s) skipped", len(ws.Dropped)))
		return nil
	}
	p.Success("sources merged")
	return nil
}
