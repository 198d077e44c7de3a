// Package main implements the hive-dash live event dashboard, a
// websocket client of the hive notification server.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	url := flag.String("url", "ws://localhost:7433/ws", "notification server websocket URL")
	key := flag.String("key", os.Getenv("HIVE_NOTIFY_KEY"), "pre-shared key")
	flag.Parse()

	p := tea.NewProgram(newModel(*url, *key), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}
