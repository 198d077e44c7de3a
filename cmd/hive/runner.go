package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"hive/pkg/backlog"
	"hive/pkg/orchestrator"
)

// conflictExitCode is how an executor signals a merge conflict it cannot
// resolve, as opposed to an ordinary failure.
const conflictExitCode = 3

// commandRunner wraps an executor shell command as a backlog Runner. The
// work item is passed through HIVE_* environment variables. An empty
// command completes every item immediately (dry-run mode).
func commandRunner(command string) backlog.Runner {
	if command == "" {
		return func(context.Context, int, orchestrator.WorkItem) error { return nil }
	}

	return func(ctx context.Context, agentID int, item orchestrator.WorkItem) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Env = append(os.Environ(),
			fmt.Sprintf("HIVE_AGENT=%d", agentID),
			fmt.Sprintf("HIVE_PROJECT=%d", item.ProjectNumber),
			fmt.Sprintf("HIVE_ISSUE=%d", item.IssueNumber),
			fmt.Sprintf("HIVE_TITLE=%s", item.Title),
			fmt.Sprintf("HIVE_BRANCH=%s", item.BranchName),
		)

		out, err := cmd.CombinedOutput()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && exitErr.ExitCode() == conflictExitCode {
				return &orchestrator.ConflictError{BranchName: item.BranchName}
			}
			return fmt.Errorf("executor: %w: %s", err, bytes.TrimSpace(out))
		}
		return nil
	}
}
