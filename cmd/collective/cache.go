package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claude-collective/collective/pkg/presenter"
	"github.com/claude-collective/collective/pkg/source"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the remote source cache",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var cacheDirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Print the cache directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loader, err := source.NewLoader(cfg.LoaderOptions()...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), loader.Cache().Dir())
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached remote source",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		loader, err := source.NewLoader(cfg.LoaderOptions()...)
		if err != nil {
			return err
		}
		if err := loader.Cache().Clean(); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("removed %s", loader.Cache().Dir()))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheDirCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
}
