package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/schemata/internal/model"
)

// schemaMigrations upgrade a schema database; index i moves it to version i+1.
var schemaMigrations = []migration{
	// v1: unique schema names. CREATE UNIQUE INDEX IF NOT EXISTS is a
	// no-op on databases that already have it.
	func(db *sql.DB) error {
		_, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_schemas_name ON schemas(name)`)
		return err
	},
}

// SchemaStore is the aggregate store: CRUD for schema documents.
type SchemaStore struct {
	db  *sql.DB
	ids IDGenerator
}

// OpenSchemaStore creates or opens the schema database at path.
func OpenSchemaStore(path string, opts ...Option) (*SchemaStore, error) {
	db, err := openDB(path, schemasSQL, schemaMigrations)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &SchemaStore{db: db, ids: o.ids}, nil
}

// Close closes the database connection.
func (s *SchemaStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new schema document and returns it as stored.
// The store assigns the identity (when empty) and sets Version to 1.
func (s *SchemaStore) Create(ctx context.Context, doc model.Schema) (model.Schema, error) {
	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = s.ids.NewID()
	} else if err := ValidateID(doc.ID); err != nil {
		return model.Schema{}, err
	}
	doc.Version = 1

	idsJSON, err := marshalStrings(doc.PropertyIDs)
	if err != nil {
		return model.Schema{}, fmt.Errorf("create schema: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schemas (id, name, property_ids, created_at, updated_at, version, pending_delete)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		doc.ID,
		doc.Name,
		idsJSON,
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
		doc.Version,
		boolToInt(doc.PendingDelete),
	)
	if err != nil {
		return model.Schema{}, fmt.Errorf("create schema: %w", constraintError(err))
	}

	return doc, nil
}

// GetByID returns the schema with the given identity.
// Returns ErrInvalidID for a malformed id and ErrNotFound if absent.
func (s *SchemaStore) GetByID(ctx context.Context, id string) (model.Schema, error) {
	if err := ValidateID(id); err != nil {
		return model.Schema{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, property_ids, created_at, updated_at, version, pending_delete
		FROM schemas
		WHERE id = ?
	`, id)

	doc, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schema{}, ErrNotFound
	}
	if err != nil {
		return model.Schema{}, fmt.Errorf("get schema %s: %w", id, err)
	}
	return doc, nil
}

// GetAll returns every schema document ordered by creation time, then id.
// Returns an empty slice (not nil) when the store is empty.
func (s *SchemaStore) GetAll(ctx context.Context) ([]model.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, property_ids, created_at, updated_at, version, pending_delete
		FROM schemas
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	defer rows.Close()

	docs := []model.Schema{}
	for rows.Next() {
		doc, err := scanSchema(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemas: %w", err)
	}
	return docs, nil
}

// UpdateByID replaces the mutable fields of a schema document.
//
// The write succeeds only if doc.Version equals the stored version; the
// stored version is then incremented. Returns ErrVersionConflict on a
// stale version, ErrNotFound if the document is gone, ErrDuplicateName if
// the new name is taken. CreatedAt is never changed.
func (s *SchemaStore) UpdateByID(ctx context.Context, id string, doc model.Schema) (model.Schema, error) {
	if err := ValidateID(id); err != nil {
		return model.Schema{}, err
	}

	idsJSON, err := marshalStrings(doc.PropertyIDs)
	if err != nil {
		return model.Schema{}, fmt.Errorf("update schema: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Schema{}, fmt.Errorf("update schema: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		UPDATE schemas
		SET name = ?, property_ids = ?, updated_at = ?, pending_delete = ?, version = version + 1
		WHERE id = ? AND version = ?
	`,
		doc.Name,
		idsJSON,
		formatTime(doc.UpdatedAt),
		boolToInt(doc.PendingDelete),
		id,
		doc.Version,
	)
	if err != nil {
		return model.Schema{}, fmt.Errorf("update schema %s: %w", id, constraintError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return model.Schema{}, fmt.Errorf("update schema %s: rows affected: %w", id, err)
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schemas WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return model.Schema{}, fmt.Errorf("update schema %s: check existence: %w", id, err)
		}
		if exists == 0 {
			return model.Schema{}, ErrNotFound
		}
		return model.Schema{}, ErrVersionConflict
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, name, property_ids, created_at, updated_at, version, pending_delete
		FROM schemas
		WHERE id = ?
	`, id)
	updated, err := scanSchema(row)
	if err != nil {
		return model.Schema{}, fmt.Errorf("update schema %s: reload: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return model.Schema{}, fmt.Errorf("update schema %s: commit: %w", id, err)
	}
	return updated, nil
}

// DeleteByID removes a schema document and returns it as it was.
// Returns ErrInvalidID for a malformed id and ErrNotFound if absent.
func (s *SchemaStore) DeleteByID(ctx context.Context, id string) (model.Schema, error) {
	if err := ValidateID(id); err != nil {
		return model.Schema{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Schema{}, fmt.Errorf("delete schema: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	row := tx.QueryRowContext(ctx, `
		SELECT id, name, property_ids, created_at, updated_at, version, pending_delete
		FROM schemas
		WHERE id = ?
	`, id)
	doc, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schema{}, ErrNotFound
	}
	if err != nil {
		return model.Schema{}, fmt.Errorf("delete schema %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schemas WHERE id = ?`, id); err != nil {
		return model.Schema{}, fmt.Errorf("delete schema %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Schema{}, fmt.Errorf("delete schema %s: commit: %w", id, err)
	}
	return doc, nil
}

// scanSchema scans a single row into a Schema.
// Returns sql.ErrNoRows unwrapped so callers can map it to ErrNotFound.
func scanSchema(row rowScanner) (model.Schema, error) {
	var doc model.Schema
	var idsJSON, createdAt, updatedAt string
	var pending int

	if err := row.Scan(
		&doc.ID, &doc.Name, &idsJSON, &createdAt, &updatedAt, &doc.Version, &pending,
	); err != nil {
		return model.Schema{}, err
	}

	ids, err := unmarshalStrings(idsJSON)
	if err != nil {
		return model.Schema{}, err
	}
	doc.PropertyIDs = ids

	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Schema{}, err
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Schema{}, err
	}
	doc.PendingDelete = pending != 0

	return doc, nil
}
