package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the shared session journal",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with journal records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer journal.Close()

		ids, err := journal.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var journalShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Print the journal records of a session as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer journal.Close()

		records, err := journal.Records(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}

var journalTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow journal records published by every server sharing the redis journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := openJournal(cmd)
		if err != nil {
			return err
		}
		defer journal.Close()

		if journal.shared == nil {
			return errors.New("tail requires --redis-addr")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := journal.shared.Subscribe(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(journalCmd)
	for _, cmd := range []*cobra.Command{journalListCmd, journalShowCmd, journalTailCmd} {
		addJournalFlags(cmd)
		journalCmd.AddCommand(cmd)
	}
}
