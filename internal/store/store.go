// Package store provides the per-device local store for the repair-shop
// entities, backed by embedded SQLite with WAL mode.
//
// The store owns the six entity tables plus a small key/value settings
// table. All multi-table writes (registration groups, cascade deletes,
// snapshot restore) run inside a single transaction so readers never see a
// partially applied state. Committed writes feed a change-notification
// list keyed by table name; the sync scheduler and the dashboard subscribe
// to it instead of polling.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with repair-shop specific operations.
type Store struct {
	conn *sql.DB
	path string

	subs *subscribers
}

// Open creates a new store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created; call InitSchema before first use.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(".taller/taller.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{
		conn: conn,
		path: path,
		subs: newSubscribers(),
	}

	// WAL keeps readers unblocked while the sync layer replaces tables.
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return st, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS clientes (
		id TEXT PRIMARY KEY,
		nombre TEXT NOT NULL,
		telefono TEXT NOT NULL,
		email TEXT,
		fecha_alta TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS equipos (
		id TEXT PRIMARY KEY,
		cliente_id TEXT NOT NULL,
		categoria TEXT NOT NULL DEFAULT '',
		marca TEXT NOT NULL DEFAULT '',
		modelo TEXT NOT NULL DEFAULT '',
		numero_serie TEXT,
		descripcion TEXT NOT NULL DEFAULT '',
		fecha_recepcion TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ordenes (
		id TEXT PRIMARY KEY,
		codigo TEXT NOT NULL,
		equipo_id TEXT NOT NULL,
		estado TEXT NOT NULL DEFAULT 'recepcion',
		creada TEXT NOT NULL,
		actualizada TEXT NOT NULL,
		presupuesto_aprox REAL,
		precio_nuevo REAL,
		precio_segunda_mano REAL
	);

	CREATE TABLE IF NOT EXISTS eventos (
		id TEXT PRIMARY KEY,
		orden_id TEXT NOT NULL,
		tipo TEXT NOT NULL,
		texto TEXT NOT NULL DEFAULT '',
		fecha TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS piezas (
		id TEXT PRIMARY KEY,
		orden_id TEXT NOT NULL,
		nombre TEXT NOT NULL,
		cantidad INTEGER NOT NULL DEFAULT 1,
		coste REAL NOT NULL DEFAULT 0,
		estado TEXT NOT NULL DEFAULT 'pendiente'
	);

	CREATE TABLE IF NOT EXISTS adjuntos (
		id TEXT PRIMARY KEY,
		orden_id TEXT NOT NULL,
		nombre TEXT NOT NULL,
		tipo TEXT NOT NULL DEFAULT '',
		tam INTEGER NOT NULL DEFAULT 0,
		fecha TEXT NOT NULL,
		blob BLOB
	);

	CREATE TABLE IF NOT EXISTS ajustes (
		clave TEXT PRIMARY KEY,
		valor TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_equipos_cliente ON equipos(cliente_id);
	CREATE INDEX IF NOT EXISTS idx_ordenes_equipo ON ordenes(equipo_id);
	CREATE INDEX IF NOT EXISTS idx_ordenes_estado ON ordenes(estado);
	CREATE INDEX IF NOT EXISTS idx_ordenes_actualizada ON ordenes(actualizada);
	CREATE INDEX IF NOT EXISTS idx_eventos_orden ON eventos(orden_id);
	CREATE INDEX IF NOT EXISTS idx_piezas_orden ON piezas(orden_id);
	CREATE INDEX IF NOT EXISTS idx_adjuntos_orden ON adjuntos(orden_id);
	`

	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// SetSetting stores a key/value pair in the ajustes table.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO ajustes (clave, valor) VALUES (?, ?)
	ON CONFLICT(clave) DO UPDATE SET valor = excluded.valor
	`
	if _, err := s.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// GetSetting reads a value from the ajustes table. Returns "" when the key
// has never been set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, "SELECT valor FROM ajustes WHERE clave = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}
