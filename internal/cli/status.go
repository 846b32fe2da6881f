package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/questforge/questforge/internal/daemon"
)

func init() {
	rootCmd.AddCommand(statusCmd, leaderboardCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <user>",
	Short: "Show a user's level, streak and achievements",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	st, err := d.Insights.Status(ctx, args[0])
	if err != nil {
		return err
	}
	achievements, err := d.Insights.Achievements(ctx, args[0])
	if err != nil {
		return err
	}
	unlocked := 0
	for _, a := range achievements {
		if a.Unlocked {
			unlocked++
		}
	}

	rec := st.Record
	fmt.Println(levelLine(st.Progress))
	fmt.Printf("Streak:       %d days (longest %d)\n", rec.CurrentStreak, rec.LongestStreak)
	fmt.Printf("Discipline:   %d / 100\n", rec.DisciplineScore)
	fmt.Printf("Tasks:        %d completed\n", rec.TasksCompleted)
	fmt.Printf("Focus:        %d sessions\n", rec.TotalFocusSessions)
	fmt.Printf("Achievements: %d / %d\n", unlocked, len(achievements))
	return nil
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the top users by XP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		board, err := d.Insights.Leaderboard(context.Background(), 20)
		if err != nil {
			return err
		}
		if len(board) == 0 {
			fmt.Println("No users yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tUSER\tLEVEL\tXP\tSTREAK")
		for _, e := range board {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", e.Rank, e.UserID, e.Level, e.TotalXP, e.CurrentStreak)
		}
		return w.Flush()
	},
}
