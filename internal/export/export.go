// Package export renders order and client listings as CSV or XLSX files
// for the shop's reporting spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/reparalab/taller/internal/schema"
)

var orderHeader = []string{
	"id", "codigo", "equipoId", "estado", "creada", "actualizada", "presupuestoAprox",
}

var clientHeader = []string{
	"id", "nombre", "telefono", "email", "fecha_alta",
}

// OrdersCSV writes orders as CSV.
func OrdersCSV(w io.Writer, orders []schema.Order) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(orderHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range orders {
		if err := cw.Write(orderRow(&orders[i])); err != nil {
			return fmt.Errorf("failed to write order %s: %w", orders[i].ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ClientsCSV writes clients as CSV.
func ClientsCSV(w io.Writer, clients []schema.Client) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(clientHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range clients {
		if err := cw.Write(clientRow(&clients[i])); err != nil {
			return fmt.Errorf("failed to write client %s: %w", clients[i].ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// OrdersXLSX writes orders as an Excel workbook with one Ordenes sheet.
func OrdersXLSX(w io.Writer, orders []schema.Order) error {
	rows := make([][]string, 0, len(orders))
	for i := range orders {
		rows = append(rows, orderRow(&orders[i]))
	}
	return writeSheet(w, "Ordenes", orderHeader, rows)
}

// ClientsXLSX writes clients as an Excel workbook with one Clientes sheet.
func ClientsXLSX(w io.Writer, clients []schema.Client) error {
	rows := make([][]string, 0, len(clients))
	for i := range clients {
		rows = append(rows, clientRow(&clients[i]))
	}
	return writeSheet(w, "Clientes", clientHeader, rows)
}

func writeSheet(w io.Writer, sheet string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	writeRow := func(n int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cell, &row)
	}

	if err := writeRow(1, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range rows {
		if err := writeRow(i+2, r); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func orderRow(o *schema.Order) []string {
	quote := ""
	if o.QuoteApprox != nil {
		quote = strconv.FormatFloat(*o.QuoteApprox, 'f', 2, 64)
	}
	return []string{o.ID, o.Code, o.EquipID, o.Status, o.CreatedAt, o.UpdatedAt, quote}
}

func clientRow(c *schema.Client) []string {
	return []string{c.ID, c.Name, c.Phone, c.Email, c.CreatedAt}
}
