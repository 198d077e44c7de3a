package main

import (
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"hive/pkg/protocol"
)

// connectedMsg carries a freshly dialed connection.
type connectedMsg struct{ conn *websocket.Conn }

// serverMsg carries one decoded message from the server.
type serverMsg protocol.ServerMessage

// connErrMsg reports a dial or read failure; the model shows it and
// offers reconnect.
type connErrMsg struct{ err error }

// connectCmd dials the notification server and subscribes to all
// projects.
func connectCmd(url, key string) tea.Cmd {
	return func() tea.Msg {
		header := http.Header{}
		if key != "" {
			header.Set("Authorization", "Bearer "+key)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(url, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return connErrMsg{err: err}
		}
		if err := conn.WriteJSON(protocol.ClientMessage{Type: protocol.MsgSubscribe}); err != nil {
			_ = conn.Close()
			return connErrMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// readCmd blocks on the next server message. The model re-issues it
// after every message, so exactly one read is in flight.
func readCmd(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var msg protocol.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return connErrMsg{err: err}
		}
		return serverMsg(msg)
	}
}
