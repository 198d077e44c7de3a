package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"hive/pkg/protocol"
)

// maxRows bounds the event feed kept in memory.
const maxRows = 200

// chromeLines is the header and footer height around the feed viewport.
const chromeLines = 5

// eventRow is one rendered feed line.
type eventRow struct {
	Time    string
	Type    string
	Project int
	Issue   int
	Detail  string
	Info    bool // informational server message, not an event
}

// Model is the Bubble Tea model for the hive dashboard.
type Model struct {
	url string
	key string

	conn      *websocket.Conn
	connected bool
	lastErr   string

	rows   []eventRow
	counts map[string]int

	vp     viewport.Model
	styles Styles
}

func newModel(url, key string) Model {
	return Model{
		url:    url,
		key:    key,
		counts: make(map[string]int),
		vp:     viewport.New(80, 20),
		styles: defaultStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return connectCmd(m.url, m.key)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - chromeLines
		if m.vp.Height < 1 {
			m.vp.Height = 1
		}
		m.refreshFeed()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.conn != nil {
				_ = m.conn.Close()
			}
			return m, tea.Quit
		case "r":
			if !m.connected {
				m.lastErr = ""
				return m, connectCmd(m.url, m.key)
			}
			return m, nil
		case "c":
			m.rows = nil
			m.counts = make(map[string]int)
			m.refreshFeed()
			return m, nil
		}
		// Everything else scrolls the feed.
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd

	case connectedMsg:
		m.conn = msg.conn
		m.connected = true
		m.lastErr = ""
		return m, readCmd(m.conn)

	case connErrMsg:
		m.connected = false
		m.conn = nil
		m.lastErr = msg.err.Error()
		return m, nil

	case serverMsg:
		m = m.appendMessage(protocol.ServerMessage(msg))
		return m, readCmd(m.conn)
	}
	return m, nil
}

// appendMessage folds one server message into the feed.
func (m Model) appendMessage(msg protocol.ServerMessage) Model {
	var row eventRow
	switch {
	case msg.Type == protocol.MsgEvent && msg.Event != nil:
		ev := msg.Event
		row = eventRow{
			Time:    ev.Timestamp.Format("15:04:05"),
			Type:    string(ev.Type),
			Project: ev.ProjectNumber,
			Issue:   ev.IssueNumber,
			Detail:  string(ev.Data),
		}
		m.counts[string(ev.Type)]++
	default:
		row = eventRow{Detail: msg.Message, Info: true}
	}

	m.rows = append(m.rows, row)
	if len(m.rows) > maxRows {
		m.rows = m.rows[len(m.rows)-maxRows:]
	}
	m.refreshFeed()
	return m
}

// refreshFeed rerenders the viewport content pinned to the newest rows.
func (m *Model) refreshFeed() {
	m.vp.SetContent(m.renderFeed())
	m.vp.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Header.Render("hive events"))
	b.WriteString("  ")
	if m.connected {
		b.WriteString(m.styles.Connected.Render("● connected"))
	} else {
		b.WriteString(m.styles.Offline.Render("○ offline"))
		if m.lastErr != "" {
			b.WriteString(m.styles.Dim.Render(" " + m.lastErr))
		}
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Dim.Render(m.summaryLine()))
	b.WriteString("\n\n")

	b.WriteString(m.vp.View())

	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("q quit · r reconnect · c clear · ↑/↓ scroll"))
	return b.String()
}

func (m Model) renderFeed() string {
	lines := make([]string, len(m.rows))
	for i, row := range m.rows {
		lines[i] = m.renderRow(row)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(row eventRow) string {
	if row.Info {
		return m.styles.Info.Render("· " + row.Detail)
	}
	issue := ""
	if row.Issue != 0 {
		issue = fmt.Sprintf("#%d", row.Issue)
	}
	return fmt.Sprintf("%s  %s  %s %s",
		m.styles.Dim.Render(row.Time),
		m.styles.EventType.Render(fmt.Sprintf("%-16s", row.Type)),
		m.styles.Dim.Render(fmt.Sprintf("project %d %s", row.Project, issue)),
		row.Detail)
}

// summaryLine renders per-type event counts in a stable order.
func (m Model) summaryLine() string {
	if len(m.counts) == 0 {
		return "no events yet"
	}
	order := []string{
		string(protocol.EventProjectUpdated),
		string(protocol.EventIssueCreated),
		string(protocol.EventIssueUpdated),
		string(protocol.EventIssueDeleted),
		string(protocol.EventPhaseUpdated),
	}
	var parts []string
	for _, t := range order {
		if n := m.counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", t, n))
		}
	}
	return strings.Join(parts, " · ")
}
