package main

import (
	"fmt"

	"github.com/aretw0/rewind/internal/script"
	"github.com/aretw0/rewind/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <script.yaml>",
	Short: "Check a script for consistency",
	Long:  `Decodes a script without playing it and reports unknown entities, undeclared relationships, unbalanced groups and missing checkpoints.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := script.LoadFile(args[0])
		if err != nil {
			return err
		}
		if err := validator.ValidateScript(sc); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Script is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
