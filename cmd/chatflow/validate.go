package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow.json>",
	Short: "Check a flow graph for publish errors and warnings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		issues, err := validateGraph(raw)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, issue := range issues {
			fmt.Fprintln(out, issue.String())
		}
		if validator.HasErrors(issues) {
			return fmt.Errorf("%d error(s)", len(validator.Errors(issues)))
		}
		fmt.Fprintln(out, "flow is publishable")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateGraph accepts either a full flow document or a bare graph.
func validateGraph(raw []byte) ([]validator.Issue, error) {
	var g chatflow.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse flow: %w", err)
	}
	return validator.Validate(&g), nil
}
