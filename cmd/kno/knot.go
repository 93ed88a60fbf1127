package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/knots/knots/internal/app"
	"github.com/knots/knots/internal/types"
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "create a knot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		body, _ := cmd.Flags().GetString("body")
		state, _ := cmd.Flags().GetString("state")
		profile, _ := cmd.Flags().GetString("profile")

		var bodyPtr, profilePtr *string
		if body != "" {
			bodyPtr = &body
		}
		if profile != "" {
			profilePtr = &profile
		}
		if state == "" {
			state = types.StateReadyForPlanning.String()
		}

		knot, err := a.CreateKnot(cmd.Context(), args[0], bodyPtr, state, profilePtr)
		if err != nil {
			return exitCode(err)
		}
		return printResult(knot)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "show one knot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		knot, err := a.ShowKnot(cmd.Context(), args[0])
		if err != nil {
			return exitCode(err)
		}
		return printResult(knot)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list every knot in the hot projection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		knots, err := a.ListKnots(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		return printResult(knots)
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "list every knot as a parent_of pre-order tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		nodes, err := a.ListKnotsTree(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		return printResult(nodes)
	},
}

var setStateCmd = &cobra.Command{
	Use:   "set-state <id> <state>",
	Short: "transition a knot to a new workflow state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		force, _ := cmd.Flags().GetBool("force")
		etag, _ := cmd.Flags().GetString("expected-etag")
		var etagPtr *string
		if etag != "" {
			etagPtr = &etag
		}

		knot, err := a.SetState(cmd.Context(), args[0], args[1], force, etagPtr)
		if err != nil {
			return exitCode(err)
		}
		return printResult(knot)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "apply one or more field changes to a knot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return exitCode(err)
		}
		defer a.Close()

		patch := app.KnotPatch{}
		if v, _ := cmd.Flags().GetString("title"); v != "" {
			patch.Title = &v
		}
		if v, _ := cmd.Flags().GetString("description"); v != "" {
			patch.Description = &v
		}
		if v, _ := cmd.Flags().GetString("knot-type"); v != "" {
			patch.KnotType = &v
		}
		if v, _ := cmd.Flags().GetInt64("priority"); cmd.Flags().Changed("priority") {
			patch.Priority = &v
		}
		if v, _ := cmd.Flags().GetString("add-tags"); v != "" {
			patch.AddTags = strings.Split(v, ",")
		}
		if v, _ := cmd.Flags().GetString("remove-tags"); v != "" {
			patch.RemoveTags = strings.Split(v, ",")
		}
		if etag, _ := cmd.Flags().GetString("expected-etag"); etag != "" {
			patch.ExpectedWorkflowEtag = &etag
		}

		knot, err := a.UpdateKnot(cmd.Context(), args[0], patch)
		if err != nil {
			return exitCode(err)
		}
		return printResult(knot)
	},
}

func init() {
	createCmd.Flags().String("body", "", "knot body")
	createCmd.Flags().String("state", "", "initial workflow state (default: ready_for_planning)")
	createCmd.Flags().String("profile", "", "workflow profile id")

	setStateCmd.Flags().Bool("force", false, "bypass the workflow transition table")
	setStateCmd.Flags().String("expected-etag", "", "fail with StaleWorkflowHead unless this matches the current workflow_etag")

	updateCmd.Flags().String("title", "", "new title")
	updateCmd.Flags().String("description", "", "new description")
	updateCmd.Flags().String("knot-type", "", "new knot type")
	updateCmd.Flags().Int64("priority", 0, "new priority")
	updateCmd.Flags().String("add-tags", "", "comma-separated tags to add")
	updateCmd.Flags().String("remove-tags", "", "comma-separated tags to remove")
	updateCmd.Flags().String("expected-etag", "", "fail with StaleWorkflowHead unless this matches the current workflow_etag")
}
