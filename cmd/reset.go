package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blobsey/flashtoll/internal/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear local state (keeps the server URL)",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve DB path: %w", err)
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		if err := st.KV().Clear(cmd.Context(), store.KeyAPIBaseURL); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
		fmt.Println("Local state cleared.")
		return nil
	},
}
