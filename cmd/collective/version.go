package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claude-collective/collective/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information of collective in JSON format, or as one line with --short.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := version.Get()
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		}
		json, err := info.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), json)
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "print a single line")
}
