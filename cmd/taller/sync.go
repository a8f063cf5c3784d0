package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	tsync "github.com/reparalab/taller/internal/sync"
	"github.com/reparalab/taller/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync now: push local data, then pull the remote snapshot",
	Long: `Force an immediate sync cycle.

Local data is pushed first so pending edits reach the backend, then the
remote snapshot is pulled unconditionally. Unlike the background daemon,
errors are reported directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		client, err := newRemote()
		if err != nil {
			return err
		}

		rec := tsync.NewReconciler(st, client, syncPolicy(), nil)
		sched := tsync.NewScheduler(rec, st, schedulerConfig(), nil)

		fmt.Printf("%s Syncing...\n", ui.RenderAccent("→"))
		start := time.Now()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := sched.ForceSync(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s Sync failed: %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}

		count, _ := st.CountOrders(ctx)
		fmt.Printf("%s Sync complete in %v (%d orders local)\n",
			ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond), count)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local data counts and the last sync time",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		ctx := context.Background()

		clients, err := st.ListClients(ctx)
		if err != nil {
			return err
		}
		orders, err := st.CountOrders(ctx)
		if err != nil {
			return err
		}
		freshness, err := st.OrderFreshness(ctx)
		if err != nil {
			return err
		}
		lastSync, err := st.GetSetting(ctx, tsync.SettingLastSync)
		if err != nil {
			return err
		}

		fmt.Printf("Database: %s\n", dbPath())
		fmt.Printf("  Clients: %d\n", len(clients))
		fmt.Printf("  Orders:  %d\n", orders)
		if !freshness.IsZero() {
			fmt.Printf("  Newest order update: %s\n", freshness.Format(time.RFC3339))
		}
		if lastSync != "" {
			fmt.Printf("  Last successful sync: %s\n", lastSync)
		} else {
			fmt.Printf("  Last successful sync: %s\n", ui.RenderMuted("never"))
		}
		return nil
	},
}
