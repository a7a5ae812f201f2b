// Package memory provides in-memory implementations of the schema and
// property stores.
//
// They follow the same contracts as the SQLite stores in the parent
// package, including its sentinel errors, optimistic versioning and
// unique schema names. Used by tests and by `schemata serve --memory`.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/store"
)

// SchemaStore is an in-memory aggregate store.
//
// Thread-safety: safe for concurrent use.
type SchemaStore struct {
	mu   sync.RWMutex
	docs map[string]model.Schema
	ids  store.IDGenerator
}

// NewSchemaStore returns an empty store. A nil gen uses UUIDv7.
func NewSchemaStore(gen store.IDGenerator) *SchemaStore {
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	return &SchemaStore{docs: make(map[string]model.Schema), ids: gen}
}

// Create inserts doc, assigning an identity if it has none.
func (s *SchemaStore) Create(_ context.Context, doc model.Schema) (model.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = s.ids.NewID()
	} else if err := store.ValidateID(doc.ID); err != nil {
		return model.Schema{}, err
	}
	if _, ok := s.docs[doc.ID]; ok {
		return model.Schema{}, store.ErrDuplicateID
	}
	if s.nameTaken(doc.Name, "") {
		return model.Schema{}, store.ErrDuplicateName
	}
	doc.Version = 1
	s.docs[doc.ID] = doc
	return doc.Clone(), nil
}

// GetByID returns the document with the given identity.
func (s *SchemaStore) GetByID(_ context.Context, id string) (model.Schema, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Schema{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return model.Schema{}, store.ErrNotFound
	}
	return doc.Clone(), nil
}

// GetAll returns every document ordered by creation time, then id.
func (s *SchemaStore) GetAll(_ context.Context) ([]model.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]model.Schema, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc.Clone())
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// UpdateByID replaces the mutable fields of a document if doc.Version
// matches the stored version.
func (s *SchemaStore) UpdateByID(_ context.Context, id string, doc model.Schema) (model.Schema, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Schema{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[id]
	if !ok {
		return model.Schema{}, store.ErrNotFound
	}
	if cur.Version != doc.Version {
		return model.Schema{}, store.ErrVersionConflict
	}
	if s.nameTaken(doc.Name, id) {
		return model.Schema{}, store.ErrDuplicateName
	}

	next := doc.Clone()
	next.ID = id
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	s.docs[id] = next
	return next.Clone(), nil
}

// DeleteByID removes a document and returns it as it was.
func (s *SchemaStore) DeleteByID(_ context.Context, id string) (model.Schema, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Schema{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return model.Schema{}, store.ErrNotFound
	}
	delete(s.docs, id)
	return doc, nil
}

// nameTaken reports whether a document other than except uses name.
// Caller must hold s.mu.
func (s *SchemaStore) nameTaken(name, except string) bool {
	for id, doc := range s.docs {
		if id != except && doc.Name == name {
			return true
		}
	}
	return false
}

// PropertyStore is an in-memory property entity store.
//
// Thread-safety: safe for concurrent use.
type PropertyStore struct {
	mu    sync.RWMutex
	props map[string]model.Property
	ids   store.IDGenerator
}

// NewPropertyStore returns an empty store. A nil gen uses UUIDv7.
func NewPropertyStore(gen store.IDGenerator) *PropertyStore {
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	return &PropertyStore{props: make(map[string]model.Property), ids: gen}
}

// Create inserts p, keeping a provided identity.
func (s *PropertyStore) Create(_ context.Context, p model.Property) (model.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = p.Clone()
	if p.ID == "" {
		p.ID = s.ids.NewID()
	} else if err := store.ValidateID(p.ID); err != nil {
		return model.Property{}, err
	}
	if _, ok := s.props[p.ID]; ok {
		return model.Property{}, store.ErrDuplicateID
	}
	s.props[p.ID] = p
	return p.Clone(), nil
}

// GetByID returns the property with the given identity.
func (s *PropertyStore) GetByID(_ context.Context, id string) (model.Property, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Property{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.props[id]
	if !ok {
		return model.Property{}, store.ErrNotFound
	}
	return p.Clone(), nil
}

// UpdateByID overwrites an existing property.
func (s *PropertyStore) UpdateByID(_ context.Context, id string, p model.Property) (model.Property, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Property{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.props[id]; !ok {
		return model.Property{}, store.ErrNotFound
	}
	p = p.Clone()
	p.ID = id
	s.props[id] = p
	return p.Clone(), nil
}

// DeleteByID removes a property and returns it as it was.
func (s *PropertyStore) DeleteByID(_ context.Context, id string) (model.Property, error) {
	if err := store.ValidateID(id); err != nil {
		return model.Property{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.props[id]
	if !ok {
		return model.Property{}, store.ErrNotFound
	}
	delete(s.props, id)
	return p, nil
}

// UpdatePropertyRef renames the back-reference on every matching property.
func (s *PropertyStore) UpdatePropertyRef(_ context.Context, oldName, newName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, p := range s.props {
		if p.SchemaName == oldName {
			p.SchemaName = newName
			s.props[id] = p
			n++
		}
	}
	return n, nil
}

// List returns every property ordered by id.
func (s *PropertyStore) List(_ context.Context) ([]model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Property, 0, len(s.props))
	for _, p := range s.props {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b model.Property) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
