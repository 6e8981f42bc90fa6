package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/presenter"
	"github.com/claude-collective/collective/pkg/resolver"
)

type ResolveConfig struct {
	Entered     []string
	Disabled    []string
	All         bool
	JSON        bool
	SkipInvalid bool
}

func NewResolveConfig() *ResolveConfig {
	return &ResolveConfig{}
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [skill...]",
	Short: "Validate a skill selection against the merged matrix",
	Long: `Resolve a candidate selection of skill ids or aliases. Required skills are
included automatically, every skill is annotated as recommended, discouraged or
disabled, and rule violations are reported. The command exits with status 1
when the selection has blocking errors.

Examples:
  collective resolve react zustand
  collective resolve react --enter frontend/state
  collective resolve hono zod --disable-category "mobile/*" --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd, args, getResolveConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewResolveConfig()
	resolveCmd.Flags().StringSlice("enter", defaults.Entered, "category the selection has entered (repeatable)")
	resolveCmd.Flags().StringSlice("disable-category", defaults.Disabled, "glob of categories whose skills are disabled (repeatable)")
	resolveCmd.Flags().Bool("all", defaults.All, "list every skill, not only active and annotated ones")
	resolveCmd.Flags().Bool("json", defaults.JSON, "print the result as JSON")
	resolveCmd.Flags().Bool("skip-invalid", defaults.SkipInvalid, "drop sources that fail to load or merge")
}

func getResolveConfigFromFlags(cmd *cobra.Command) *ResolveConfig {
	config := NewResolveConfig()
	config.Entered, _ = cmd.Flags().GetStringSlice("enter")
	config.Disabled, _ = cmd.Flags().GetStringSlice("disable-category")
	config.All, _ = cmd.Flags().GetBool("all")
	config.JSON, _ = cmd.Flags().GetBool("json")
	config.SkipInvalid, _ = cmd.Flags().GetBool("skip-invalid")
	return config
}

// selection builds the resolver input from positional ids, flags and the
// configured disabled categories
func selection(args []string, config *ResolveConfig) resolver.Selection {
	sel := resolver.Selection{
		Skills:             make([]catalog.SkillID, 0, len(args)),
		DisabledCategories: append(append([]string{}, cfg.DisabledCategories...), config.Disabled...),
	}
	for _, id := range args {
		sel.Skills = append(sel.Skills, catalog.SkillID(id))
	}
	for _, c := range config.Entered {
		sel.EnteredCategories = append(sel.EnteredCategories, catalog.CategoryPath(c))
	}
	return sel
}

func runResolve(cmd *cobra.Command, args []string, config *ResolveConfig) error {
	ctx := cmd.Context()
	p := presenter.Default()

	ws, err := loadWorkspace(ctx, cfg, config.SkipInvalid)
	if err != nil {
		return err
	}

	res := resolver.Resolve(ctx, ws.Matrix, selection(args, config))

	if config.JSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal resolution")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	} else {
		ws.report(p)
		p.Resolution(res, config.All)
	}

	if !res.Valid() {
		return errReported
	}
	return nil
}
