package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/suggest"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <parentType>",
	Short: "Rank node types to follow a node of the given type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := suggest.Suggest(chatflow.NodeType(args[0]))
		if err != nil {
			return err
		}
		for _, s := range out {
			d, _ := chatflow.Describe(s.NodeType)
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (%s)\n", s.Rank, s.NodeType, d.Label)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)
}
