package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/reparalab/taller/internal/dashboard"
	"github.com/reparalab/taller/internal/inbox"
	tsync "github.com/reparalab/taller/internal/sync"
	"github.com/reparalab/taller/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync scheduler, the attachment inbox watcher, and the
status dashboard until interrupted.

The daemon:
  1. Pulls the remote snapshot on startup (seeding it when absent)
  2. Pulls periodically and pushes after local changes settle
  3. Ingests attachment files dropped into the inbox directory
  4. Serves sync state over WebSocket for UI indicators`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.New(&lumberjack.Logger{
			Filename:   filepath.Join(dataDir(), "daemon.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}, "[daemon] ", log.LstdFlags)

		st, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		client, err := newRemote()
		if err != nil {
			return err
		}

		rec := tsync.NewReconciler(st, client, syncPolicy(), logger)
		sched := tsync.NewScheduler(rec, st, schedulerConfig(), logger)

		server := dashboard.NewServer(&dashboard.Config{
			Port:   viper.GetInt("dashboard.port"),
			Logger: logger,
		}, sched.State)
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()

		handler := dashboard.NewHandler(server, logger)
		handler.Attach(sched, st)
		defer handler.Detach()

		inboxDir := viper.GetString("inbox.dir")
		if inboxDir == "" {
			inboxDir = filepath.Join(dataDir(), "inbox")
		}
		watcher, err := inbox.New(st, inboxDir, &inbox.Config{Logger: logger})
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()

		if err := sched.Init(); err != nil {
			return err
		}
		defer sched.Close()

		fmt.Printf("%s Daemon running (dashboard on %s, inbox at %s)\n",
			ui.RenderPass("✓"), server.Addr(), inboxDir)
		fmt.Println(ui.RenderMuted("Press Ctrl+C to stop"))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		fmt.Println("\nShutting down...")
		return nil
	},
}
