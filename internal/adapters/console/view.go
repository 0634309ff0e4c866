package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	bannedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failureStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

const help = "↑/j move  enter select  k kick  b ban/confirm  u unban  esc reset  r role  1/2 demote  c cancel  q quit"

func (m *Model) View() string {
	left := panelStyle.Render(m.viewMembers())
	right := panelStyle.Render(m.viewModeration() + "\n\n" + m.viewRoles())
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s @ %s", m.user, m.room)))
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.status))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(help))
	return b.String()
}

func (m *Model) viewMembers() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Members"))
	for i, member := range m.list {
		line := fmt.Sprintf("%s  %s %s", member.UserID, member.Role(), member.Membership)
		if member.DisplayName != "" {
			line = member.DisplayName + " " + line
		}
		if member.IsBanned() {
			line = bannedStyle.Render(line)
		}
		if i == m.cursor {
			line = cursorStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	if len(m.list) == 0 {
		b.WriteString("\n" + dimStyle.Render("no members"))
	}
	return b.String()
}

func (m *Model) viewModeration() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Moderation"))
	if !m.caps.CanDisplayModerationActions {
		b.WriteString("\n" + dimStyle.Render("no moderation rights"))
	}
	v := m.moderation
	if v.SelectedRoomMember != nil {
		b.WriteString("\nselected: " + string(v.SelectedRoomMember.UserID))
		kinds := make([]string, 0, len(v.Actions))
		for _, a := range v.Actions {
			kinds = append(kinds, a.Kind)
		}
		if len(kinds) > 0 {
			b.WriteString("\nactions: " + strings.Join(kinds, ", "))
		}
	}
	b.WriteString("\nkick:  " + renderSlot(v.Kick))
	b.WriteString("\nban:   " + renderSlot(v.Ban))
	b.WriteString("\nunban: " + renderSlot(v.Unban))
	return b.String()
}

func (m *Model) viewRoles() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Roles"))
	fmt.Fprintf(&b, "\nmy role: %s", m.caps.Role)
	fmt.Fprintf(&b, "\nadmins: %d  moderators: %d", m.roles.AdminCount, m.roles.ModeratorCount)
	b.WriteString("\nchange role: " + renderSlot(m.roles.ChangeOwnRole))
	return b.String()
}

func renderSlot(s slotView) string {
	switch s.State {
	case "confirming":
		return progressStyle.Render("confirm? (press again)")
	case "loading":
		return progressStyle.Render("working...")
	case "success":
		return successStyle.Render("done")
	case "failure":
		return failureStyle.Render("failed: " + s.Error)
	}
	return dimStyle.Render("-")
}
