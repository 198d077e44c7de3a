package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"hive/pkg/emergency"
	"hive/pkg/orchestrator"
	"hive/pkg/protocol"
	"hive/pkg/queue"
	"hive/pkg/session"
)

// stores bundles the durable state every offline command operates on.
type stores struct {
	paths     *Paths
	claims    *queue.ClaimStore
	conflicts *queue.ConflictQueue
	sessions  *session.Manager
}

func openStores() (*stores, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}
	return &stores{
		paths:     paths,
		claims:    queue.NewClaimStore(paths.SessionDir),
		conflicts: queue.NewConflictQueue(paths.SessionDir),
		sessions:  session.NewManager(paths.SessionDir),
	}, nil
}

// offlinePool is the emergency.Pool for commands running outside the
// serve process. Nothing is live, so every non-stopped session record
// counts as orphaned and restart has no loop to act on.
type offlinePool struct{}

func (offlinePool) LiveIDs() []int              { return nil }
func (offlinePool) Status() orchestrator.Status { return orchestrator.Status{} }
func (offlinePool) EmergencyStop()              {}
func (offlinePool) ResetAgent(int) bool         { return false }

func (offlinePool) RestartAgent(id int) error {
	return &protocol.AgentNotFoundError{AgentID: id}
}

// promptConfirm shows the impact summary and asks the operator to
// approve. It reads one line from the command's input.
func promptConfirm(cmd *cobra.Command) emergency.ConfirmFunc {
	return func(im emergency.Impact) bool {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "impact: %d agents (%d working), %d active claims\n",
			im.TotalAgents, im.WorkingAgents, im.ActiveClaims)
		fmt.Fprint(out, "proceed? [y/N] ")

		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

// colorize wraps s in an ANSI color when w is a terminal.
func colorize(w io.Writer, code, s string) string {
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// stateColor maps agent states to ANSI color codes for status output.
func stateColor(state protocol.AgentState) string {
	switch state {
	case protocol.AgentWorking:
		return "32" // green
	case protocol.AgentPaused:
		return "33" // yellow
	case protocol.AgentStopped:
		return "31" // red
	default:
		return "36" // cyan
	}
}
