package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/claude-collective/collective/pkg/agents"
	"github.com/claude-collective/collective/pkg/catalog"
	"github.com/claude-collective/collective/pkg/compiler"
	"github.com/claude-collective/collective/pkg/presenter"
	"github.com/claude-collective/collective/pkg/resolver"
)

type CompileConfig struct {
	ResolveConfig
	Agents []string
	Out    string
	DryRun bool
	Diff   bool
}

func NewCompileConfig() *CompileConfig {
	return &CompileConfig{}
}

var compileCmd = &cobra.Command{
	Use:   "compile skill [skill...]",
	Short: "Compile agent documents for a skill selection",
	Long: `Resolve the selection and, when it has no blocking errors, compile every
agent (or the agents named with --agent) into <out>/<agent>.md. Only the skills
an agent requires that are part of the resolved selection contribute content.

Examples:
  collective compile react zustand
  collective compile react --agent frontend-developer --out ./dist
  collective compile react zustand --diff --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompile(cmd, args, getCompileConfigFromFlags(cmd))
	},
}

func init() {
	defaults := NewCompileConfig()
	compileCmd.Flags().StringSlice("agent", defaults.Agents, "agent to compile (repeatable, default all)")
	compileCmd.Flags().String("out", defaults.Out, "output directory (default output_dir from config)")
	compileCmd.Flags().Bool("dry-run", defaults.DryRun, "compile without writing files")
	compileCmd.Flags().Bool("diff", defaults.Diff, "print a unified diff against the existing output")
	compileCmd.Flags().Bool("json", defaults.JSON, "print the compiled batch as JSON instead of writing files")
	compileCmd.Flags().StringSlice("enter", defaults.Entered, "category the selection has entered (repeatable)")
	compileCmd.Flags().StringSlice("disable-category", defaults.Disabled, "glob of categories whose skills are disabled (repeatable)")
	compileCmd.Flags().Bool("skip-invalid", defaults.SkipInvalid, "drop sources that fail to load or merge")
}

func getCompileConfigFromFlags(cmd *cobra.Command) *CompileConfig {
	config := NewCompileConfig()
	config.Agents, _ = cmd.Flags().GetStringSlice("agent")
	config.Out, _ = cmd.Flags().GetString("out")
	config.DryRun, _ = cmd.Flags().GetBool("dry-run")
	config.Diff, _ = cmd.Flags().GetBool("diff")
	config.JSON, _ = cmd.Flags().GetBool("json")
	config.Entered, _ = cmd.Flags().GetStringSlice("enter")
	config.Disabled, _ = cmd.Flags().GetStringSlice("disable-category")
	config.SkipInvalid, _ = cmd.Flags().GetBool("skip-invalid")
	if config.Out == "" {
		config.Out = cfg.OutputDir
	}
	return config
}

func runCompile(cmd *cobra.Command, args []string, config *CompileConfig) error {
	ctx := cmd.Context()
	p := presenter.Default()

	ws, err := loadWorkspace(ctx, cfg, config.SkipInvalid)
	if err != nil {
		return err
	}
	ws.report(p)

	res := resolver.Resolve(ctx, ws.Matrix, selection(args, &config.ResolveConfig))
	if !res.Valid() {
		p.Resolution(res, false)
		p.Error(errors.New("selection has blocking errors"), "compile")
		return errReported
	}

	targets, err := selectAgents(ws.Agents, config.Agents)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no agent definitions found")
	}

	batch := compiler.CompileAll(ctx, targets, res, ws.Matrix)

	if config.JSON {
		out, err := json.MarshalIndent(batch, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal compiled documents")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	} else {
		for _, doc := range batch.Documents {
			for _, w := range doc.Warnings {
				p.Warning(w.String())
			}
			if err := emit(cmd, p, config, doc); err != nil {
				return err
			}
		}
	}

	for _, f := range batch.Failures {
		p.Error(f, "")
	}
	if len(batch.Failures) > 0 {
		return errReported
	}
	return nil
}

func selectAgents(all []catalog.AgentDefinition, names []string) ([]catalog.AgentDefinition, error) {
	if len(names) == 0 {
		return all, nil
	}
	registry := agents.NewRegistry(all)
	out := make([]catalog.AgentDefinition, 0, len(names))
	for _, name := range names {
		def, err := registry.Get(name)
		if err != nil {
			return nil, errors.Wrapf(err, "available agents: %v", registry.Names())
		}
		out = append(out, def)
	}
	return out, nil
}

// emit writes one compiled document, printing a diff first when asked
func emit(cmd *cobra.Command, p *presenter.TerminalPresenter, config *CompileConfig, doc *compiler.Document) error {
	name := doc.Agent + ".md"
	if !filepath.IsLocal(name) || filepath.Base(name) != name {
		return errors.Errorf("refusing to write agent %q outside %s", doc.Agent, config.Out)
	}
	path := filepath.Join(config.Out, name)

	if config.Diff {
		existing, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to read %s", path)
		}
		if diff := udiff.Unified(path, path, string(existing), doc.Content); diff != "" {
			fmt.Fprint(cmd.OutOrStdout(), diff)
		} else {
			p.Info(fmt.Sprintf("%s unchanged", path))
		}
	}

	if config.DryRun {
		p.Info(fmt.Sprintf("would write %s (%d skills)", path, len(doc.Provenance)))
		return nil
	}

	if err := os.MkdirAll(config.Out, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %s", config.Out)
	}
	if err := os.WriteFile(path, []byte(doc.Content), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	p.Success(fmt.Sprintf("wrote %s (%d skills)", path, len(doc.Provenance)))
	return nil
}
