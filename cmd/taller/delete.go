package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reparalab/taller/internal/ui"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an order or a client, cascading over dependents",
}

var deleteOrderCmd = &cobra.Command{
	Use:   "order <id>",
	Short: "Delete an order and its events, parts, attachments, and equipment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		if err := st.DeleteOrderCascade(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete order: %w", err)
		}
		fmt.Printf("%s Deleted order %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var deleteClientCmd = &cobra.Command{
	Use:   "client <id>",
	Short: "Delete a client and every record hanging off them",
	Long: `Delete a client along with all of their equipment, the orders for
that equipment, and every event, part, and attachment under those
orders. The whole cascade runs in one transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		if err := st.DeleteClientCascade(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}
		fmt.Printf("%s Deleted client %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	deleteCmd.AddCommand(deleteOrderCmd)
	deleteCmd.AddCommand(deleteClientCmd)
}
