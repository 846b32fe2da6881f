package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/questforge/questforge/internal/app/engagement"
	"github.com/questforge/questforge/internal/daemon"
	"github.com/questforge/questforge/internal/domain"
)

func init() {
	publishCmd.Flags().StringVar(&publishTitle, "title", "", "Quest title (required)")
	publishCmd.Flags().StringVar(&publishDesc, "description", "", "Quest description")
	publishCmd.Flags().StringVar(&publishType, "type", string(domain.QuestTasks), "Quest type (tasks, focus, streak, skill, xp, challenge, ...)")
	publishCmd.Flags().StringVar(&publishUnit, "unit", "", "Target unit (count or minutes)")
	publishCmd.Flags().IntVar(&publishTarget, "target", 0, "Target amount (required)")
	publishCmd.Flags().Int64Var(&publishXP, "xp", 0, "XP reward (required)")
	publishCmd.Flags().DurationVar(&publishFor, "expires-in", 0, "Expire after this long (0 = never)")
	publishCmd.MarkFlagRequired("title")

	questsCmd.AddCommand(questsListCmd, publishCmd)
	rootCmd.AddCommand(questsCmd)
}

var (
	publishTitle  string
	publishDesc   string
	publishType   string
	publishUnit   string
	publishTarget int
	publishXP     int64
	publishFor    time.Duration
)

var questsCmd = &cobra.Command{
	Use:   "quests",
	Short: "List quests or publish global quests",
}

var questsListCmd = &cobra.Command{
	Use:   "list <user> [cadence]",
	Short: "List a user's current quests",
	Long:  `List a user's quests for one cadence (daily, weekly, monthly, micro, beginner, global) or all of them.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := context.Background()
		var sets map[domain.Cadence][]domain.Quest
		if len(args) == 2 {
			cadence := domain.Cadence(args[1])
			qs, err := d.Quests.GetOrCreate(ctx, cadence, args[0])
			if err != nil {
				return err
			}
			sets = map[domain.Cadence][]domain.Quest{cadence: qs}
		} else if sets, err = d.Quests.All(ctx, args[0]); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CADENCE\tTITLE\tPROGRESS\tXP\tSTATUS")
		order := append(append([]domain.Cadence(nil), engagement.UserCadences...), domain.CadenceGlobal)
		for _, cadence := range order {
			for _, q := range sets[cadence] {
				status := "open"
				if q.Completed {
					status = "done"
				}
				fmt.Fprintf(w, "%s\t%s\t%d/%d %s\t%d\t%s\n",
					cadence, q.Title, q.Progress, q.Target, q.Unit, q.XPReward, status)
			}
		}
		return w.Flush()
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish-global",
	Short: "Publish a quest visible to every user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		var expiresAt *time.Time
		if publishFor > 0 {
			t := time.Now().UTC().Add(publishFor)
			expiresAt = &t
		}
		q, err := d.Quests.PublishGlobal(context.Background(), domain.QuestTemplate{
			Title:       publishTitle,
			Description: publishDesc,
			Type:        domain.QuestType(publishType),
			Unit:        domain.QuestUnit(publishUnit),
			Target:      publishTarget,
			XPReward:    publishXP,
		}, expiresAt)
		if err != nil {
			return err
		}
		fmt.Printf("Published global quest %s (%q)\n", q.ID, q.Title)
		return nil
	},
}
