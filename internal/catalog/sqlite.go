package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLite is a local product catalog
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the catalog database at path
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	slog.Debug("Catalog database ready", "path", path)
	return &SQLite{db: db}, nil
}

// Lookup returns the stored product for barcode
func (s *SQLite) Lookup(ctx context.Context, barcode string) (*Product, error) {
	query := `SELECT barcode, name, brand, category, price FROM products WHERE barcode = ?`

	p := &Product{}
	err := s.db.QueryRowContext(ctx, query, barcode).Scan(&p.Barcode, &p.Name, &p.Brand, &p.Category, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying product %s: %w", barcode, err)
	}
	return p, nil
}

// Save inserts or replaces a product
func (s *SQLite) Save(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (barcode, name, brand, category, price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(barcode) DO UPDATE SET
			name = excluded.name,
			brand = excluded.brand,
			category = excluded.category,
			price = excluded.price,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, p.Barcode, p.Name, p.Brand, p.Category, p.Price, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving product %s: %w", p.Barcode, err)
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
