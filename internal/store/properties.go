package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/schemata/internal/model"
)

// PropertyStore is the entity store: CRUD for property entities plus the
// bulk rename of schema back-references.
type PropertyStore struct {
	db  *sql.DB
	ids IDGenerator
}

// OpenPropertyStore creates or opens the property database at path.
func OpenPropertyStore(path string, opts ...Option) (*PropertyStore, error) {
	db, err := openDB(path, propertiesSQL, nil)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &PropertyStore{db: db, ids: o.ids}, nil
}

// Close closes the database connection.
func (s *PropertyStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a property entity and returns it as stored.
//
// A provided ID is kept (compensations re-create entities under their
// original identity); otherwise a new one is generated. Returns
// ErrDuplicateID if the identity is already in use.
func (s *PropertyStore) Create(ctx context.Context, p model.Property) (model.Property, error) {
	p = p.Clone()
	if p.ID == "" {
		p.ID = s.ids.NewID()
	} else if err := ValidateID(p.ID); err != nil {
		return model.Property{}, err
	}

	valuesJSON, err := marshalStrings(p.Type.Values)
	if err != nil {
		return model.Property{}, fmt.Errorf("create property: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO properties (id, name, kind, enum_values, schema_name)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, string(p.Type.Kind), valuesJSON, p.SchemaName)
	if err != nil {
		return model.Property{}, fmt.Errorf("create property: %w", constraintError(err))
	}
	return p, nil
}

// GetByID returns the property with the given identity.
func (s *PropertyStore) GetByID(ctx context.Context, id string) (model.Property, error) {
	if err := ValidateID(id); err != nil {
		return model.Property{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, enum_values, schema_name
		FROM properties
		WHERE id = ?
	`, id)

	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Property{}, ErrNotFound
	}
	if err != nil {
		return model.Property{}, fmt.Errorf("get property %s: %w", id, err)
	}
	return p, nil
}

// UpdateByID overwrites name, type and back-reference of an existing
// property and returns the stored entity.
func (s *PropertyStore) UpdateByID(ctx context.Context, id string, p model.Property) (model.Property, error) {
	if err := ValidateID(id); err != nil {
		return model.Property{}, err
	}

	valuesJSON, err := marshalStrings(p.Type.Values)
	if err != nil {
		return model.Property{}, fmt.Errorf("update property: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE properties
		SET name = ?, kind = ?, enum_values = ?, schema_name = ?
		WHERE id = ?
	`, p.Name, string(p.Type.Kind), valuesJSON, p.SchemaName, id)
	if err != nil {
		return model.Property{}, fmt.Errorf("update property %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return model.Property{}, fmt.Errorf("update property %s: rows affected: %w", id, err)
	}
	if affected == 0 {
		return model.Property{}, ErrNotFound
	}

	out := p.Clone()
	out.ID = id
	return out, nil
}

// DeleteByID removes a property and returns it as it was.
func (s *PropertyStore) DeleteByID(ctx context.Context, id string) (model.Property, error) {
	if err := ValidateID(id); err != nil {
		return model.Property{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Property{}, fmt.Errorf("delete property: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	row := tx.QueryRowContext(ctx, `
		SELECT id, name, kind, enum_values, schema_name
		FROM properties
		WHERE id = ?
	`, id)
	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Property{}, ErrNotFound
	}
	if err != nil {
		return model.Property{}, fmt.Errorf("delete property %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE id = ?`, id); err != nil {
		return model.Property{}, fmt.Errorf("delete property %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Property{}, fmt.Errorf("delete property %s: commit: %w", id, err)
	}
	return p, nil
}

// UpdatePropertyRef rewrites the back-reference of every property whose
// schema name is oldName to newName. It returns the number of rows changed.
func (s *PropertyStore) UpdatePropertyRef(ctx context.Context, oldName, newName string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE properties SET schema_name = ? WHERE schema_name = ?
	`, newName, oldName)
	if err != nil {
		return 0, fmt.Errorf("update property ref %q -> %q: %w", oldName, newName, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update property ref: rows affected: %w", err)
	}
	return n, nil
}

// List returns every property ordered by id.
func (s *PropertyStore) List(ctx context.Context) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, enum_values, schema_name
		FROM properties
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	props := []model.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return props, nil
}

func scanProperty(row rowScanner) (model.Property, error) {
	var p model.Property
	var kind, valuesJSON string

	if err := row.Scan(&p.ID, &p.Name, &kind, &valuesJSON, &p.SchemaName); err != nil {
		return model.Property{}, err
	}
	p.Type.Kind = model.PropertyKind(kind)

	values, err := unmarshalStrings(valuesJSON)
	if err != nil {
		return model.Property{}, err
	}
	// Non-enum kinds carry no values; keep them nil so JSON omits them.
	if len(values) > 0 {
		p.Type.Values = values
	}
	return p, nil
}
