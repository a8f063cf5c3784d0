package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/reparalab/taller/internal/schema"
)

// Cascade deletion. An order and its equipment share a creation lifecycle,
// so removing either parent must leave no orphaned child rows behind. All
// deletes for one cascade run inside a single transaction; the store is
// never observable in a partially deleted state.

// DeleteOrderCascade removes an order, its events, parts, and attachments,
// and the equipment it was created for.
//
// A missing order id is a no-op, not an error, so retrying a delete that
// already went through is safe.
func (s *Store) DeleteOrderCascade(ctx context.Context, orderID string) error {
	order, err := s.GetOrder(ctx, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read order %s: %w", orderID, err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM eventos WHERE orden_id = ?",
		"DELETE FROM piezas WHERE orden_id = ?",
		"DELETE FROM adjuntos WHERE orden_id = ?",
		"DELETE FROM ordenes WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, orderID); err != nil {
			return fmt.Errorf("cascade delete failed: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM equipos WHERE id = ?", order.EquipID); err != nil {
		return fmt.Errorf("cascade delete failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cascade: %w", err)
	}

	s.notify(schema.TableOrders, schema.TableEvents, schema.TableParts,
		schema.TableAttachments, schema.TableEquipment)
	return nil
}

// DeleteClientCascade removes a client and everything reachable from it:
// equipment, orders on that equipment, and the orders' events, parts, and
// attachments.
//
// The child deletes are set-based subqueries rather than per-order loops;
// one statement per table keeps the write transaction short regardless of
// how many orders the client accumulated.
//
// A missing client id is a no-op, not an error.
func (s *Store) DeleteClientCascade(ctx context.Context, clientID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const orderSet = `SELECT id FROM ordenes WHERE equipo_id IN
		(SELECT id FROM equipos WHERE cliente_id = ?)`

	for _, q := range []string{
		"DELETE FROM eventos WHERE orden_id IN (" + orderSet + ")",
		"DELETE FROM piezas WHERE orden_id IN (" + orderSet + ")",
		"DELETE FROM adjuntos WHERE orden_id IN (" + orderSet + ")",
		"DELETE FROM ordenes WHERE equipo_id IN (SELECT id FROM equipos WHERE cliente_id = ?)",
		"DELETE FROM equipos WHERE cliente_id = ?",
		"DELETE FROM clientes WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, clientID); err != nil {
			return fmt.Errorf("cascade delete failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cascade: %w", err)
	}

	s.notify(schema.TableClients, schema.TableEquipment, schema.TableOrders,
		schema.TableEvents, schema.TableParts, schema.TableAttachments)
	return nil
}
