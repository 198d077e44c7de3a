package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"hive/pkg/backlog"
	"hive/pkg/budget"
	"hive/pkg/bus"
	"hive/pkg/control"
	"hive/pkg/emergency"
	"hive/pkg/eventlog"
	"hive/pkg/loopcheck"
	"hive/pkg/notify"
	"hive/pkg/orchestrator"
	"hive/pkg/protocol"
	"hive/pkg/queue"
	"hive/pkg/session"
)

// newServeCmd creates the "hive serve" subcommand.
func newServeCmd() *cobra.Command {
	var (
		instances  int
		notifyAddr string
		notifyKey  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent pool",
		Long:  "Starts the orchestrator, the backlog watcher, and optionally\nthe websocket notification server, until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			cfg, err := LoadConfig(paths.ConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("instances") {
				cfg.Instances = instances
			}
			if notifyAddr != "" {
				cfg.Notify.Addr = notifyAddr
			}
			if notifyKey != "" {
				cfg.Notify.Key = notifyKey
			}

			db, err := eventlog.Open(paths.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			claims := queue.NewClaimStore(paths.SessionDir)
			conflicts := queue.NewConflictQueue(paths.SessionDir)
			sessions := session.NewManager(paths.SessionDir)
			tracker := budget.NewTracker(paths.HiveDir)

			eventBus := bus.New()
			recorder := eventlog.NewRecorder(db)
			eventBus.Subscribe(bus.Filter{}, recorder.Record)

			store := backlog.NewStore(paths.BacklogDir)
			source := backlog.NewSource(store, claims, commandRunner(cfg.Executor), nil)
			validator := loopcheck.New(db, claims, conflicts, sessions, source)

			orch := orchestrator.New(orchestrator.Config{
				InitialInstances: cfg.Instances,
				IdleSleep:        cfg.IdleSleep,
			}, claims, conflicts, sessions, tracker, source, eventBus, validator)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			watcher := backlog.NewWatcher(backlog.WatcherConfig{}, store, eventBus)
			go watcher.Run(ctx)

			ctlSrv := control.NewServer(filepath.Join(paths.HiveDir, protocol.ControlSocketFile), orch)
			go func() {
				if err := ctlSrv.Run(ctx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "control server: %v\n", err)
				}
			}()

			if cfg.Notify.Addr != "" {
				srv := notify.NewServer(notify.Config{
					Addr:         cfg.Notify.Addr,
					PresharedKey: cfg.Notify.Key,
				}, eventBus)
				go func() {
					if err := srv.Run(ctx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "notify server: %v\n", err)
					}
				}()
				fmt.Fprintf(cmd.OutOrStdout(), "notifications on %s\n", cfg.Notify.Addr)
			}

			// The emergency controller is live here for SIGTERM cleanup;
			// offline commands build their own against durable state.
			ctrl := emergency.NewController(orch, claims, sessions, emergency.NewAuditLog(db))

			orch.Start()
			fmt.Fprintf(cmd.OutOrStdout(), "serving %d agents from %s\n", cfg.Instances, paths.BacklogDir)

			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
			orch.Stop()

			if orphans, err := ctrl.CheckForOrphanedSessions(); err == nil && len(orphans) > 0 {
				if n, err := ctrl.CleanupOrphanedSessions(); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "cleaned %d orphaned sessions\n", n)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&instances, "instances", 0, "agent pool size (overrides config)")
	cmd.Flags().StringVar(&notifyAddr, "notify-addr", "", "notification server listen address")
	cmd.Flags().StringVar(&notifyKey, "notify-key", "", "notification server pre-shared key")
	return cmd
}
