package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/ledger"
	"github.com/blobsey/flashtoll/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the toll state and recent reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve DB path: %w", err)
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		led := ledger.New(st.KV())
		grant, err := led.ExistingTimeGrant(ctx)
		if err != nil {
			return fmt.Errorf("read time grant: %w", err)
		}
		next, err := led.NextFlashcardTime(ctx)
		if err != nil {
			return fmt.Errorf("read next review time: %w", err)
		}

		fmt.Printf("Earned time (unredeemed): %s\n", grant.Round(time.Second))
		if until := time.Until(next); until > 0 {
			fmt.Printf("Next review due in:       %s\n", until.Round(time.Second))
		} else {
			fmt.Println("Next review due:          now")
		}

		events, err := st.ReviewEvents().Recent(ctx, 10)
		if err != nil {
			return fmt.Errorf("read review log: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("\nNo reviews recorded yet.")
			return nil
		}

		fmt.Println("\nRecent reviews:")
		for _, e := range events {
			fmt.Printf("  %s  card %s  %s  +%s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04"),
				e.CardID,
				gradeName(e.Grade),
				time.Duration(e.GrantedMs)*time.Millisecond)
		}
		return nil
	},
}

func gradeName(grade int) string {
	if grade >= 1 && grade <= len(api.Grades) {
		return api.Grades[grade-1]
	}
	return fmt.Sprintf("grade %d", grade)
}
