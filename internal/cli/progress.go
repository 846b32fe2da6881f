package cli

import (
	"fmt"
	"strings"

	"github.com/questforge/questforge/internal/app/engagement"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Terminal bars for level and quest progress.
// Level 3  [=========>....................]  31% │ 260 / 500 XP

const barWidth = 30 // Characters for the progress bar

// renderBar draws a fixed-width bar for pct in [0, 100].
func renderBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	// Build the bar: [=======>............]
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	switch {
	case filled == barWidth:
		return "[" + strings.Repeat("=", filled) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty) + "]"
	default:
		return "[" + strings.Repeat(".", barWidth) + "]"
	}
}

// levelLine formats a level progress line for the status command.
func levelLine(p engagement.Progress) string {
	if p.NextLevelXP == 0 {
		return fmt.Sprintf("Level %d  %s MAX │ %d XP", p.Level, renderBar(100), p.TotalXP)
	}
	return fmt.Sprintf("Level %d  %s %3.0f%% │ %d / %d XP",
		p.Level, renderBar(p.Percent), p.Percent, p.TotalXP, p.NextLevelXP)
}
