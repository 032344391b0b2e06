package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/playbooksim/internal/playbook"
)

var (
	styleGoal = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	styleRoleCount = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// headerView renders the playbook goal and the task count per role,
// truncated to width.
func headerView(pb *playbook.Playbook, width int) string {
	if pb == nil || width <= 0 {
		return ""
	}

	goal := strings.Join(strings.Fields(pb.HighLevelGoal), " ")
	if goal == "" {
		goal = "Playbook"
	}

	counts := pb.TasksByRole()
	parts := make([]string, 0, len(counts))
	for _, rc := range counts {
		parts = append(parts, fmt.Sprintf("%s %d", rc.Role, rc.Count))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		styleGoal.Render(truncate(goal, width)),
		styleRoleCount.Render(truncate(strings.Join(parts, " · "), width)),
	)
}
