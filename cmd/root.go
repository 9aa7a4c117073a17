package cmd

import (
	"github.com/blobsey/flashtoll/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flashtoll",
	Short: "Spaced-repetition toll for your browsing time",
	Long:  "Flashtoll — earn browsing time by reviewing flashcards. Blocked sites interrupt with a review until you pay the toll.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides FLASHTOLL_DB env var)")
	rootCmd.PersistentFlags().String("url", "", "Flashcard server base URL (persisted for later runs)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then FLASHTOLL_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}
