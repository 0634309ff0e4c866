package console

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dkeye/Moderation/internal/adapters/signal"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/domain"
)

type slotView struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type moderationView struct {
	SelectedRoomMember *domain.Member `json:"selected_room_member"`
	Actions            []struct {
		Kind   string        `json:"kind"`
		UserID domain.UserID `json:"user_id"`
	} `json:"actions"`
	Kick  slotView `json:"kick_user_async_action"`
	Ban   slotView `json:"ban_user_async_action"`
	Unban slotView `json:"unban_user_async_action"`
}

type rolesView struct {
	AdminCount     int      `json:"admin_count"`
	ModeratorCount int      `json:"moderator_count"`
	ChangeOwnRole  slotView `json:"change_own_role_action"`
}

type (
	frameMsg   Frame
	membersMsg []domain.Member
	errMsg     struct{ err error }
	closedMsg  struct{ err error }
)

// MemberLister fetches the room's member list.
type MemberLister func(ctx context.Context) ([]domain.Member, error)

type Model struct {
	conn    Conn
	members MemberLister
	room    domain.RoomID
	user    string

	list       []domain.Member
	cursor     int
	moderation moderationView
	roles      rolesView
	caps       orch.Capabilities
	status     string
	closed     bool

	width int
}

func NewModel(conn Conn, room domain.RoomID, user string, members MemberLister) *Model {
	return &Model{conn: conn, members: members, room: room, user: user, status: "connected"}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchMembers(), m.waitFrame())
}

func (m *Model) waitFrame() tea.Cmd {
	return func() tea.Msg {
		f, err := m.conn.Next()
		if err != nil {
			return closedMsg{err: err}
		}
		return frameMsg(f)
	}
}

func (m *Model) fetchMembers() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		list, err := m.members(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return membersMsg(list)
	}
}

func (m *Model) send(in signal.Inbound) tea.Cmd {
	return func() tea.Msg {
		if err := m.conn.Send(in); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.onKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case membersMsg:
		m.list = msg
		if m.cursor >= len(m.list) {
			m.cursor = max(len(m.list)-1, 0)
		}
	case frameMsg:
		return m, tea.Batch(m.onFrame(Frame(msg)), m.waitFrame())
	case errMsg:
		m.status = "error: " + msg.err.Error()
	case closedMsg:
		m.closed = true
		m.status = "disconnected: " + msg.err.Error()
	}
	return m, nil
}

func (m *Model) onKey(k tea.KeyMsg) tea.Cmd {
	switch k.String() {
	case "ctrl+c", "q":
		_ = m.conn.Close()
		return tea.Quit
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.list)-1 {
			m.cursor++
		}
	}
	if m.closed {
		return nil
	}
	switch k.String() {
	case "enter":
		if len(m.list) == 0 {
			return nil
		}
		return m.send(signal.Inbound{Type: signal.TypeSelectMember, UserID: string(m.list[m.cursor].UserID)})
	case "k":
		return m.send(signal.Inbound{Type: signal.TypeKick})
	case "b":
		return m.send(signal.Inbound{Type: signal.TypeBan})
	case "u":
		return m.send(signal.Inbound{Type: signal.TypeUnban})
	case "esc":
		return m.send(signal.Inbound{Type: signal.TypeReset})
	case "r":
		return m.send(signal.Inbound{Type: signal.TypeChangeOwnRole})
	case "1":
		return m.send(signal.Inbound{Type: signal.TypeDemoteSelf, Role: domain.RoleModerator.String()})
	case "2":
		return m.send(signal.Inbound{Type: signal.TypeDemoteSelf, Role: domain.RoleUser.String()})
	case "c":
		return m.send(signal.Inbound{Type: signal.TypeCancelRoleChange})
	}
	return nil
}

// onFrame applies a server frame. Finished actions change the room, so
// they trigger a member refresh.
func (m *Model) onFrame(f Frame) tea.Cmd {
	switch f.Type {
	case signal.TypeModerationState:
		var v moderationView
		if err := json.Unmarshal(f.Data, &v); err != nil {
			m.status = "bad state: " + err.Error()
			return nil
		}
		m.moderation = v
		if v.Kick.State == "success" || v.Ban.State == "success" || v.Unban.State == "success" {
			return m.fetchMembers()
		}
	case signal.TypeRolesState:
		var v rolesView
		if err := json.Unmarshal(f.Data, &v); err != nil {
			m.status = "bad state: " + err.Error()
			return nil
		}
		m.roles = v
		if v.ChangeOwnRole.State == "success" {
			return m.fetchMembers()
		}
	case signal.TypeCapabilities:
		var v orch.Capabilities
		if err := json.Unmarshal(f.Data, &v); err != nil {
			m.status = "bad capabilities: " + err.Error()
			return nil
		}
		m.caps = v
	case signal.TypeError:
		m.status = "server: " + f.Error
		if f.Message != "" {
			m.status += " (" + f.Message + ")"
		}
	case signal.TypePong:
		m.status = "pong"
	}
	return nil
}
