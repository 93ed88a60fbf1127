package main

import (
	"github.com/spf13/cobra"
)

var edgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "add, remove, or list dependency edges between knots",
}

var edgeAddCmd = &cobra.Command{
	Use:   "add <src> <kind> <dst>",
	Short: "add a dependency edge",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		edge, err := a.AddEdge(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return exitCode(err)
		}
		return printResult(edge)
	},
}

var edgeRemoveCmd = &cobra.Command{
	Use:   "remove <src> <kind> <dst>",
	Short: "remove a dependency edge",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		edge, err := a.RemoveEdge(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return exitCode(err)
		}
		return printResult(edge)
	},
}

var edgeListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "list edges touching a knot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		direction, _ := cmd.Flags().GetString("direction")
		edges, err := a.ListEdges(cmd.Context(), args[0], direction)
		if err != nil {
			return exitCode(err)
		}
		return printResult(edges)
	},
}

func init() {
	edgeListCmd.Flags().String("direction", "both", "out, in, or both")
	edgeCmd.AddCommand(edgeAddCmd, edgeRemoveCmd, edgeListCmd)
}
