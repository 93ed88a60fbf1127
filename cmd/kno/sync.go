package main

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "push local events then pull and apply remote ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		summary, err := a.Sync(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		return printResult(summary)
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "publish local events to the side branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		summary, err := a.Push(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		return printResult(summary)
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "fetch and apply events from the side branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		summary, err := a.Pull(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		return printResult(summary)
	},
}
