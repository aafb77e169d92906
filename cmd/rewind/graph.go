package main

import (
	"fmt"

	"github.com/aretw0/rewind/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <script.yaml>",
	Short: "Visualize the history left by a script",
	Long:  `Plays a script and prints the resulting history as a Mermaid flowchart.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, ws, err := playScript(cmd, args[0], nil)
		if ws == nil {
			return err
		}
		defer ws.Close()

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(ws.Timeline()))
		return err
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Int("limit", 0, "Override the script's history limit")
}
