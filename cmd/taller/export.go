package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reparalab/taller/internal/export"
	"github.com/reparalab/taller/internal/schema"
	"github.com/reparalab/taller/internal/store"
	"github.com/reparalab/taller/internal/ui"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export orders or clients to CSV or XLSX",
}

var exportOrdersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Export all orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport("orders", func(ctx context.Context, st *store.Store) (any, error) {
			return st.ListOrders(ctx)
		})
	},
}

var exportClientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Export all clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport("clients", func(ctx context.Context, st *store.Store) (any, error) {
			return st.ListClients(ctx)
		})
	},
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportFormat, "format", "csv", "output format: csv or xlsx")
	exportCmd.PersistentFlags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout for csv)")
	exportCmd.AddCommand(exportOrdersCmd)
	exportCmd.AddCommand(exportClientsCmd)
}

func runExport(what string, load func(context.Context, *store.Store) (any, error)) error {
	if exportFormat != "csv" && exportFormat != "xlsx" {
		return fmt.Errorf("unknown format %q (want csv or xlsx)", exportFormat)
	}
	if exportFormat == "xlsx" && exportOut == "" {
		return fmt.Errorf("--output is required for xlsx")
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	data, err := load(context.Background(), st)
	if err != nil {
		return err
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer f.Close()
		out = f
	}

	var count int
	switch rows := data.(type) {
	case []schema.Order:
		count = len(rows)
		if exportFormat == "xlsx" {
			err = export.OrdersXLSX(out, rows)
		} else {
			err = export.OrdersCSV(out, rows)
		}
	case []schema.Client:
		count = len(rows)
		if exportFormat == "xlsx" {
			err = export.ClientsXLSX(out, rows)
		} else {
			err = export.ClientsCSV(out, rows)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", what, err)
	}

	if exportOut != "" {
		fmt.Printf("%s Exported %d %s to %s\n", ui.RenderPass("✓"), count, what, exportOut)
	}
	return nil
}
