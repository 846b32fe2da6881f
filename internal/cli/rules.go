package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/questforge/questforge/internal/app/engagement"
)

// ─── Rule Calculators ───────────────────────────────────────────────────────
// These commands evaluate the progression formulas without any storage.

func init() {
	rewardCmd.Flags().Float64Var(&rewardMultiplier, "multiplier", 1.0, "Streak multiplier to apply")
	streakCmd.Flags().DurationVar(&streakSince, "since", 0, "Time since the user was last active (e.g. 30h)")
	rootCmd.AddCommand(levelCmd, rewardCmd, gradeCmd, streakCmd)
}

var (
	rewardMultiplier float64
	streakSince      time.Duration
)

var levelCmd = &cobra.Command{
	Use:   "level <total-xp>",
	Short: "Show the level for a total XP amount",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		xp, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("total XP must be an integer: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), levelLine(engagement.LevelProgress(xp)))
		return nil
	},
}

var rewardCmd = &cobra.Command{
	Use:   "reward <difficulty> <minutes>",
	Short: "Compute the XP reward for a task",
	Long:  `Compute floor((difficulty*20 + minutes*2) * multiplier). Difficulty is clamped to 1-5.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		difficulty, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("difficulty must be an integer: %w", err)
		}
		minutes, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("minutes must be an integer: %w", err)
		}
		if rewardMultiplier < 1 || rewardMultiplier > engagement.MaxStreakMultiplier {
			return fmt.Errorf("multiplier must be between 1 and %.1f", engagement.MaxStreakMultiplier)
		}
		xp := engagement.ComputeXPReward(engagement.ClampDifficulty(difficulty), engagement.ClampMinutes(minutes), rewardMultiplier)
		fmt.Fprintf(cmd.OutOrStdout(), "%d XP\n", xp)
		return nil
	},
}

var gradeCmd = &cobra.Command{
	Use:   "grade <score>",
	Short: "Grade a boss exam score (0-100)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("score must be a number: %w", err)
		}
		if score < 0 || score > 100 {
			return fmt.Errorf("score must be between 0 and 100")
		}
		g := engagement.GradeExam(score)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Grade:        %s\n", g.Grade)
		fmt.Fprintf(out, "Score:        %.1f\n", g.Score)
		fmt.Fprintf(out, "Multiplier:   %.1fx\n", g.XPMultiplier)
		if g.XPPenalty > 0 {
			fmt.Fprintf(out, "Penalty:      -%d XP\n", g.XPPenalty)
			fmt.Fprintf(out, "Extra quests: %d\n", g.ExtraDailyQuests)
		}
		return nil
	},
}

var streakCmd = &cobra.Command{
	Use:   "streak <current-streak>",
	Short: "Show how a streak evolves after a period of inactivity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("streak must be an integer: %w", err)
		}
		now := time.Now().UTC()
		u := engagement.UpdateStreak(now.Add(-streakSince), now, current)
		fmt.Fprintf(cmd.OutOrStdout(), "Streak %d (%s), multiplier %.1fx\n", u.Streak, u.Band, u.Multiplier)
		return nil
	},
}
