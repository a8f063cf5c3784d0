package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reparalab/taller/internal/schema"
)

// PutClient inserts or updates a client.
func (s *Store) PutClient(ctx context.Context, c *schema.Client) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid client: %w", err)
	}

	query := `
	INSERT INTO clientes (id, nombre, telefono, email, fecha_alta)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		nombre = excluded.nombre,
		telefono = excluded.telefono,
		email = excluded.email
	`

	_, err := s.conn.ExecContext(ctx, query, c.ID, c.Name, c.Phone, nullString(c.Email), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}

	s.notify(schema.TableClients)
	return nil
}

// GetClient retrieves a client by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetClient(ctx context.Context, id string) (*schema.Client, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT id, nombre, telefono, email, fecha_alta FROM clientes WHERE id = ?", id)

	var c schema.Client
	var email sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &email, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Email = email.String
	return &c, nil
}

// ListClients returns all clients ordered by registration date.
func (s *Store) ListClients(ctx context.Context) ([]schema.Client, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, nombre, telefono, email, fecha_alta FROM clientes ORDER BY fecha_alta ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	return scanClients(rows)
}

// PutEquipment inserts or updates an equipment row.
func (s *Store) PutEquipment(ctx context.Context, e *schema.Equipment) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid equipment: %w", err)
	}

	query := `
	INSERT INTO equipos (id, cliente_id, categoria, marca, modelo, numero_serie, descripcion, fecha_recepcion)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		categoria = excluded.categoria,
		marca = excluded.marca,
		modelo = excluded.modelo,
		numero_serie = excluded.numero_serie,
		descripcion = excluded.descripcion
	`

	_, err := s.conn.ExecContext(ctx, query,
		e.ID, e.ClientID, e.Category, e.Brand, e.Model, nullString(e.Serial), e.Description, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert equipment: %w", err)
	}

	s.notify(schema.TableEquipment)
	return nil
}

// GetEquipment retrieves an equipment row by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetEquipment(ctx context.Context, id string) (*schema.Equipment, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, cliente_id, categoria, marca, modelo, numero_serie, descripcion, fecha_recepcion
	FROM equipos WHERE id = ?`, id)

	var e schema.Equipment
	var serial sql.NullString
	err := row.Scan(&e.ID, &e.ClientID, &e.Category, &e.Brand, &e.Model, &serial, &e.Description, &e.ReceivedAt)
	if err != nil {
		return nil, err
	}
	e.Serial = serial.String
	return &e, nil
}

// ListEquipmentForClient returns all equipment belonging to a client.
func (s *Store) ListEquipmentForClient(ctx context.Context, clientID string) ([]schema.Equipment, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, cliente_id, categoria, marca, modelo, numero_serie, descripcion, fecha_recepcion
	FROM equipos WHERE cliente_id = ? ORDER BY fecha_recepcion ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer rows.Close()

	return scanEquipment(rows)
}

func scanClients(rows *sql.Rows) ([]schema.Client, error) {
	var clients []schema.Client
	for rows.Next() {
		var c schema.Client
		var email sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &email, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		c.Email = email.String
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}
	return clients, nil
}

func scanEquipment(rows *sql.Rows) ([]schema.Equipment, error) {
	var equipment []schema.Equipment
	for rows.Next() {
		var e schema.Equipment
		var serial sql.NullString
		err := rows.Scan(&e.ID, &e.ClientID, &e.Category, &e.Brand, &e.Model, &serial, &e.Description, &e.ReceivedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		e.Serial = serial.String
		equipment = append(equipment, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equipment: %w", err)
	}
	return equipment, nil
}

// nullString converts "" to NULL so optional columns stay NULL in storage.
func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
