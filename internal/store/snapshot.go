package store

import (
	"context"
	"fmt"

	"github.com/reparalab/taller/internal/schema"
)

// ReadAll dumps all six tables into a snapshot payload. This is the read
// side of a push: it takes no locks beyond SQLite's own snapshot reads.
func (s *Store) ReadAll(ctx context.Context) (schema.Payload, error) {
	var p schema.Payload
	var err error

	if p.Clients, err = s.ListClients(ctx); err != nil {
		return p, err
	}
	if p.Equipment, err = s.listAllEquipment(ctx); err != nil {
		return p, err
	}
	if p.Orders, err = s.ListOrders(ctx); err != nil {
		return p, err
	}
	if p.Events, err = s.listAllEvents(ctx); err != nil {
		return p, err
	}
	if p.Parts, err = s.listAllParts(ctx); err != nil {
		return p, err
	}
	if p.Attachments, err = s.listAllAttachments(ctx); err != nil {
		return p, err
	}

	return p, nil
}

// ReplaceAll clears all six tables and bulk-inserts the payload in one
// transaction. This is the write side of a pull: a total replace, not a
// merge. If anything fails the local data is left exactly as it was.
func (s *Store) ReplaceAll(ctx context.Context, p schema.Payload) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range schema.Tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i := range p.Clients {
		c := &p.Clients[i]
		_, err := tx.ExecContext(ctx,
			"INSERT INTO clientes (id, nombre, telefono, email, fecha_alta) VALUES (?, ?, ?, ?, ?)",
			c.ID, c.Name, c.Phone, nullString(c.Email), c.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to restore client %s: %w", c.ID, err)
		}
	}

	if err := bulkInsertEquipment(ctx, tx, p.Equipment); err != nil {
		return err
	}
	if err := bulkInsertOrders(ctx, tx, p.Orders); err != nil {
		return err
	}

	for i := range p.Events {
		ev := &p.Events[i]
		_, err := tx.ExecContext(ctx,
			"INSERT INTO eventos (id, orden_id, tipo, texto, fecha) VALUES (?, ?, ?, ?, ?)",
			ev.ID, ev.OrderID, ev.Kind, ev.Text, ev.Date)
		if err != nil {
			return fmt.Errorf("failed to restore event %s: %w", ev.ID, err)
		}
	}

	for i := range p.Parts {
		pt := &p.Parts[i]
		_, err := tx.ExecContext(ctx,
			"INSERT INTO piezas (id, orden_id, nombre, cantidad, coste, estado) VALUES (?, ?, ?, ?, ?, ?)",
			pt.ID, pt.OrderID, pt.Name, pt.Quantity, pt.UnitCost, pt.Status)
		if err != nil {
			return fmt.Errorf("failed to restore part %s: %w", pt.ID, err)
		}
	}

	for i := range p.Attachments {
		a := &p.Attachments[i]
		_, err := tx.ExecContext(ctx,
			"INSERT INTO adjuntos (id, orden_id, nombre, tipo, tam, fecha, blob) VALUES (?, ?, ?, ?, ?, ?, ?)",
			a.ID, a.OrderID, a.Name, a.Mime, a.Size, a.Date, a.Data)
		if err != nil {
			return fmt.Errorf("failed to restore attachment %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}

	s.notify(schema.Tables...)
	return nil
}

func (s *Store) listAllEquipment(ctx context.Context) ([]schema.Equipment, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, cliente_id, categoria, marca, modelo, numero_serie, descripcion, fecha_recepcion
	FROM equipos ORDER BY fecha_recepcion ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer rows.Close()

	return scanEquipment(rows)
}

func (s *Store) listAllEvents(ctx context.Context) ([]schema.Event, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, orden_id, tipo, texto, fecha FROM eventos ORDER BY fecha ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []schema.Event
	for rows.Next() {
		var ev schema.Event
		if err := rows.Scan(&ev.ID, &ev.OrderID, &ev.Kind, &ev.Text, &ev.Date); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func (s *Store) listAllParts(ctx context.Context) ([]schema.Part, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, orden_id, nombre, cantidad, coste, estado FROM piezas")
	if err != nil {
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}
	defer rows.Close()

	var parts []schema.Part
	for rows.Next() {
		var p schema.Part
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Name, &p.Quantity, &p.UnitCost, &p.Status); err != nil {
			return nil, fmt.Errorf("failed to scan part: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parts: %w", err)
	}
	return parts, nil
}

func (s *Store) listAllAttachments(ctx context.Context) ([]schema.Attachment, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, orden_id, nombre, tipo, tam, fecha, blob FROM adjuntos ORDER BY fecha ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows)
}
