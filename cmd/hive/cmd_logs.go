package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"hive/pkg/eventlog"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail    int
	follow  bool
	project int
	kind    string
}

// newLogsCmd creates the "hive logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query and tail the event log",
		Long:  "Displays recorded state-change events from the runtime\ndatabase, optionally filtered by project or event type.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			db, err := eventlog.Open(paths.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			w := cmd.OutOrStdout()
			if cfg.follow {
				return followEvents(cmd.Context(), db, w, cfg)
			}
			return printEvents(cmd.Context(), db, w, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "poll for new events every 1s")
	cmd.Flags().IntVar(&cfg.project, "project", 0, "filter by project number")
	cmd.Flags().StringVar(&cfg.kind, "type", "", "filter by event type")
	return cmd
}

func printEvents(ctx context.Context, db *sql.DB, w io.Writer, cfg logsConfig) error {
	events, err := eventlog.Query(ctx, db, eventlog.QueryOpts{
		ProjectNumber: cfg.project,
		EventType:     cfg.kind,
		Limit:         cfg.tail,
	})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return nil
	}
	// Query returns newest first; print chronologically.
	for i := len(events) - 1; i >= 0; i-- {
		formatEvent(w, events[i])
	}
	return nil
}

// followEvents prints the initial tail, then polls for rows newer than
// the last seen id.
func followEvents(ctx context.Context, db *sql.DB, w io.Writer, cfg logsConfig) error {
	events, err := eventlog.Query(ctx, db, eventlog.QueryOpts{
		ProjectNumber: cfg.project,
		EventType:     cfg.kind,
		Limit:         cfg.tail,
	})
	if err != nil {
		return err
	}
	var lastID int64
	for i := len(events) - 1; i >= 0; i-- {
		formatEvent(w, events[i])
		lastID = events[i].ID
	}
	if len(events) > 0 {
		lastID = events[0].ID
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fresh, err := eventlog.Query(ctx, db, eventlog.QueryOpts{
				ProjectNumber: cfg.project,
				EventType:     cfg.kind,
			})
			if err != nil {
				return err
			}
			for i := len(fresh) - 1; i >= 0; i-- {
				if fresh[i].ID <= lastID {
					continue
				}
				formatEvent(w, fresh[i])
				lastID = fresh[i].ID
			}
		}
	}
}

// formatEvent writes a single event in a human-readable format.
func formatEvent(w io.Writer, e eventlog.Event) {
	issue := ""
	if e.IssueNumber != 0 {
		issue = fmt.Sprintf("#%d", e.IssueNumber)
	}
	fmt.Fprintf(w, "%s | %-16s | project %d %-6s | %s\n",
		eventlog.FormatTime(e.CreatedAt), e.Type, e.ProjectNumber, issue, e.Data)
}
