package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reparalab/taller/internal/schema"
)

// AppendEvent records an event on an order and stamps the order's
// actualizada in the same transaction, so the freshness signal tracks
// child mutations too.
func (s *Store) AppendEvent(ctx context.Context, ev *schema.Event) error {
	return s.withOrderTouch(ctx, ev.OrderID, schema.TableEvents, func(tx *sql.Tx) error {
		return insertEvent(ctx, tx, ev)
	})
}

// AddPart records a spare part against an order and stamps the order's
// actualizada in the same transaction.
func (s *Store) AddPart(ctx context.Context, p *schema.Part) error {
	return s.withOrderTouch(ctx, p.OrderID, schema.TableParts, func(tx *sql.Tx) error {
		query := `
		INSERT INTO piezas (id, orden_id, nombre, cantidad, coste, estado)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nombre = excluded.nombre,
			cantidad = excluded.cantidad,
			coste = excluded.coste,
			estado = excluded.estado
		`
		if _, err := tx.ExecContext(ctx, query, p.ID, p.OrderID, p.Name, p.Quantity, p.UnitCost, p.Status); err != nil {
			return fmt.Errorf("failed to upsert part: %w", err)
		}
		return nil
	})
}

// AddAttachment stores a binary attachment against an order and stamps the
// order's actualizada in the same transaction.
func (s *Store) AddAttachment(ctx context.Context, a *schema.Attachment) error {
	return s.withOrderTouch(ctx, a.OrderID, schema.TableAttachments, func(tx *sql.Tx) error {
		query := `
		INSERT INTO adjuntos (id, orden_id, nombre, tipo, tam, fecha, blob)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nombre = excluded.nombre,
			tipo = excluded.tipo,
			tam = excluded.tam,
			blob = excluded.blob
		`
		if _, err := tx.ExecContext(ctx, query, a.ID, a.OrderID, a.Name, a.Mime, a.Size, a.Date, a.Data); err != nil {
			return fmt.Errorf("failed to upsert attachment: %w", err)
		}
		return nil
	})
}

// ListEventsForOrder returns an order's events in chronological order.
func (s *Store) ListEventsForOrder(ctx context.Context, orderID string) ([]schema.Event, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, orden_id, tipo, texto, fecha FROM eventos WHERE orden_id = ? ORDER BY fecha ASC", orderID)
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

// ListPartsForOrder returns the parts tracked against an order.
func (s *Store) ListPartsForOrder(ctx context.Context, orderID string) ([]schema.Part, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, orden_id, nombre, cantidad, coste, estado FROM piezas WHERE orden_id = ?", orderID)
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

// ListAttachmentsForOrder returns an order's attachments, payload included.
func (s *Store) ListAttachmentsForOrder(ctx context.Context, orderID string) ([]schema.Attachment, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, orden_id, nombre, tipo, tam, fecha, blob FROM adjuntos WHERE orden_id = ? ORDER BY fecha ASC", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	return scanAttachments(rows)
}

func scanAttachments(rows *sql.Rows) ([]schema.Attachment, error) {
	var atts []schema.Attachment
	for rows.Next() {
		var a schema.Attachment
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Name, &a.Mime, &a.Size, &a.Date, &a.Data); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		atts = append(atts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return atts, nil
}

// withOrderTouch runs fn and updates the owning order's actualizada inside
// one transaction, then notifies the child table plus ordenes.
func (s *Store) withOrderTouch(ctx context.Context, orderID, table string, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	now := schema.FormatTime(time.Now())
	res, err := tx.ExecContext(ctx, "UPDATE ordenes SET actualizada = ? WHERE id = ?", now, orderID)
	if err != nil {
		return fmt.Errorf("failed to touch order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s not found", orderID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(table, schema.TableOrders)
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *schema.Event) error {
	query := `
	INSERT INTO eventos (id, orden_id, tipo, texto, fecha)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET texto = excluded.texto
	`
	if _, err := tx.ExecContext(ctx, query, ev.ID, ev.OrderID, ev.Kind, ev.Text, ev.Date); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}
