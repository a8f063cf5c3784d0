package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reparalab/taller/internal/schema"
)

// PutOrder inserts or updates an order.
func (s *Store) PutOrder(ctx context.Context, o *schema.Order) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}

	query := `
	INSERT INTO ordenes (
		id, codigo, equipo_id, estado, creada, actualizada,
		presupuesto_aprox, precio_nuevo, precio_segunda_mano
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		codigo = excluded.codigo,
		estado = excluded.estado,
		actualizada = excluded.actualizada,
		presupuesto_aprox = excluded.presupuesto_aprox,
		precio_nuevo = excluded.precio_nuevo,
		precio_segunda_mano = excluded.precio_segunda_mano
	`

	_, err := s.conn.ExecContext(ctx, query,
		o.ID, o.Code, o.EquipID, o.Status, o.CreatedAt, o.UpdatedAt,
		nullFloat(o.QuoteApprox), nullFloat(o.PriceNew), nullFloat(o.PriceSecondHand))
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}

	s.notify(schema.TableOrders)
	return nil
}

// GetOrder retrieves an order by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetOrder(ctx context.Context, id string) (*schema.Order, error) {
	row := s.conn.QueryRowContext(ctx, selectOrders+" WHERE id = ?", id)

	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders returns all orders, newest first.
func (s *Store) ListOrders(ctx context.Context) ([]schema.Order, error) {
	rows, err := s.conn.QueryContext(ctx, selectOrders+" ORDER BY creada DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// CountOrders returns the number of orders in the local store.
func (s *Store) CountOrders(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM ordenes").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// OrderFreshness returns the newest actualizada across all orders, or the
// zero time when the table is empty. Wire-format timestamps are UTC
// RFC 3339, so the lexicographic MAX is the chronological one.
func (s *Store) OrderFreshness(ctx context.Context) (time.Time, error) {
	var max sql.NullString
	if err := s.conn.QueryRowContext(ctx, "SELECT MAX(actualizada) FROM ordenes").Scan(&max); err != nil {
		return time.Time{}, fmt.Errorf("failed to read order freshness: %w", err)
	}
	if !max.Valid {
		return time.Time{}, nil
	}
	return schema.ParseTime(max.String), nil
}

// SetOrderStatus updates an order's status and freshness stamp and records
// the transition as a cambio_estado event, all in one transaction.
func (s *Store) SetOrderStatus(ctx context.Context, orderID, status string, ev *schema.Event) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := schema.FormatTime(time.Now())
	res, err := tx.ExecContext(ctx,
		"UPDATE ordenes SET estado = ?, actualizada = ? WHERE id = ?", status, now, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s not found", orderID)
	}

	if ev != nil {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(schema.TableOrders, schema.TableEvents)
	return nil
}

const selectOrders = `
SELECT id, codigo, equipo_id, estado, creada, actualizada,
       presupuesto_aprox, precio_nuevo, precio_segunda_mano
FROM ordenes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*schema.Order, error) {
	var o schema.Order
	var quote, priceNew, priceUsed sql.NullFloat64
	err := row.Scan(&o.ID, &o.Code, &o.EquipID, &o.Status, &o.CreatedAt, &o.UpdatedAt,
		&quote, &priceNew, &priceUsed)
	if err != nil {
		return nil, err
	}
	o.QuoteApprox = floatPtr(quote)
	o.PriceNew = floatPtr(priceNew)
	o.PriceSecondHand = floatPtr(priceUsed)
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]schema.Order, error) {
	var orders []schema.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
