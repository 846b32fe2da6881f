// Package cli implements the questforge command-line interface using Cobra.
// Pure rule commands (level, reward, grade) run without touching storage;
// the rest open the daemon's SQLite store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "questforge",
	Short: "questforge: a gamified progression engine",
	Long: `questforge turns tasks, focus sessions and daily boss exams into XP,
levels, streaks, achievements and quests.

Run 'questforge serve' to start the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
