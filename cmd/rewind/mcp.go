package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	mcpAdapter "github.com/aretw0/rewind/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Exposes undo/redo sessions as Model Context Protocol tools.
Supports stdio (default) and SSE transports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		sessions, journal, err := newSessions(cmd, nil)
		if err != nil {
			return err
		}
		defer journal.Close()

		srv := mcpAdapter.NewServer(sessions, mcpAdapter.WithLogger(logger))

		switch transport {
		case "stdio":
			return srv.ServeStdio()
		case "sse":
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ServeSSE(ctx, port)
		default:
			return fmt.Errorf("unknown transport %q (stdio, sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport: stdio or sse")
	mcpCmd.Flags().IntP("port", "p", 8080, "Port for the SSE transport")
	mcpCmd.Flags().Int("limit", 0, "History limit for new sessions (0 keeps the default)")
	addJournalFlags(mcpCmd)
}
