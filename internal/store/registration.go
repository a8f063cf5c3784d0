package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reparalab/taller/internal/schema"
)

// Registration is a creation group persisted atomically: an optional new
// client plus the equipment, orders, and events created with it. Either
// everything lands or nothing does.
type Registration struct {
	Client    *schema.Client
	Equipment []schema.Equipment
	Orders    []schema.Order
	Events    []schema.Event
}

// CreateRegistration inserts a registration group in one transaction.
//
// Client is nil when registering new equipment for an existing client.
func (s *Store) CreateRegistration(ctx context.Context, reg *Registration) error {
	for i := range reg.Equipment {
		if err := reg.Equipment[i].Validate(); err != nil {
			return fmt.Errorf("invalid equipment: %w", err)
		}
	}
	for i := range reg.Orders {
		if err := reg.Orders[i].Validate(); err != nil {
			return fmt.Errorf("invalid order: %w", err)
		}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var touched []string

	if reg.Client != nil {
		if err := reg.Client.Validate(); err != nil {
			return fmt.Errorf("invalid client: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO clientes (id, nombre, telefono, email, fecha_alta) VALUES (?, ?, ?, ?, ?)",
			reg.Client.ID, reg.Client.Name, reg.Client.Phone, nullString(reg.Client.Email), reg.Client.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert client: %w", err)
		}
		touched = append(touched, schema.TableClients)
	}

	if len(reg.Equipment) > 0 {
		if err := bulkInsertEquipment(ctx, tx, reg.Equipment); err != nil {
			return err
		}
		touched = append(touched, schema.TableEquipment)
	}

	if len(reg.Orders) > 0 {
		if err := bulkInsertOrders(ctx, tx, reg.Orders); err != nil {
			return err
		}
		touched = append(touched, schema.TableOrders)
	}

	if len(reg.Events) > 0 {
		for i := range reg.Events {
			if err := insertEvent(ctx, tx, &reg.Events[i]); err != nil {
				return err
			}
		}
		touched = append(touched, schema.TableEvents)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(touched...)
	return nil
}

func bulkInsertEquipment(ctx context.Context, tx *sql.Tx, items []schema.Equipment) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO equipos (id, cliente_id, categoria, marca, modelo, numero_serie, descripcion, fecha_recepcion)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare equipment insert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		e := &items[i]
		_, err := stmt.ExecContext(ctx,
			e.ID, e.ClientID, e.Category, e.Brand, e.Model, nullString(e.Serial), e.Description, e.ReceivedAt)
		if err != nil {
			return fmt.Errorf("failed to insert equipment %s: %w", e.ID, err)
		}
	}
	return nil
}

func bulkInsertOrders(ctx context.Context, tx *sql.Tx, items []schema.Order) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO ordenes (
		id, codigo, equipo_id, estado, creada, actualizada,
		presupuesto_aprox, precio_nuevo, precio_segunda_mano
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		o := &items[i]
		_, err := stmt.ExecContext(ctx,
			o.ID, o.Code, o.EquipID, o.Status, o.CreatedAt, o.UpdatedAt,
			nullFloat(o.QuoteApprox), nullFloat(o.PriceNew), nullFloat(o.PriceSecondHand))
		if err != nil {
			return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
		}
	}
	return nil
}
