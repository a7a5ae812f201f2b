package model

import (
	"fmt"
	"slices"
	"time"
)

// PropertyKind names the value type a property holds.
type PropertyKind string

const (
	KindString  PropertyKind = "string"
	KindNumber  PropertyKind = "number"
	KindBoolean PropertyKind = "boolean"
	KindDate    PropertyKind = "date"
	KindEnum    PropertyKind = "enum"
)

// ValidKinds defines the allowed property kinds.
var ValidKinds = map[PropertyKind]bool{
	KindString:  true,
	KindNumber:  true,
	KindBoolean: true,
	KindDate:    true,
	KindEnum:    true,
}

// PropertyType is the type descriptor of a property.
// Values is only meaningful (and required) for enum kinds.
type PropertyType struct {
	Kind   PropertyKind `json:"kind" yaml:"kind"`
	Values []string     `json:"values,omitempty" yaml:"values,omitempty"`
}

// Validate checks the kind against ValidKinds and the enum value rules.
func (t PropertyType) Validate() error {
	if !ValidKinds[t.Kind] {
		return fmt.Errorf("unknown property kind %q", t.Kind)
	}
	if t.Kind == KindEnum {
		if len(t.Values) == 0 {
			return fmt.Errorf("enum property requires at least one value")
		}
		seen := make(map[string]bool, len(t.Values))
		for _, v := range t.Values {
			if seen[v] {
				return fmt.Errorf("enum value %q repeated", v)
			}
			seen[v] = true
		}
		return nil
	}
	if len(t.Values) > 0 {
		return fmt.Errorf("%s property does not accept values", t.Kind)
	}
	return nil
}

// Property is a single typed field definition owned by a schema.
//
// SchemaName is a back-reference to the owning schema by name, not by
// identity. It is written by the orchestrator; client-supplied values are
// ignored.
type Property struct {
	ID         string       `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string       `json:"propertyName" yaml:"name"`
	Type       PropertyType `json:"type" yaml:"type"`
	SchemaName string       `json:"schemaName,omitempty" yaml:"-"`
}

// Clone returns a deep copy of p.
func (p Property) Clone() Property {
	p.Type.Values = slices.Clone(p.Type.Values)
	return p
}

// Schema is the aggregate document held by the schema store.
type Schema struct {
	ID          string    `json:"id"`
	Name        string    `json:"schemaName"`
	PropertyIDs []string  `json:"schemaProperties"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Version is incremented on every successful update and checked
	// optimistically by the store.
	Version int64 `json:"version"`

	// PendingDelete marks an aggregate whose cascade delete has started
	// but not finished. Pending aggregates are hidden from reads.
	PendingDelete bool `json:"pendingDelete,omitempty"`
}

// Clone returns a deep copy of s.
func (s Schema) Clone() Schema {
	s.PropertyIDs = slices.Clone(s.PropertyIDs)
	if s.PropertyIDs == nil {
		s.PropertyIDs = []string{}
	}
	return s
}

// Aggregate is the read model: the schema document plus its resolved
// property entities in child-list order.
type Aggregate struct {
	Schema
	Properties []Property `json:"properties"`
}

// SchemaDescriptor carries the caller-controlled fields of a new schema.
type SchemaDescriptor struct {
	Name string `json:"schemaName" yaml:"name"`
}

// SchemaDraft is the desired state of a schema submitted for update.
//
// Properties with an ID refer to existing children; properties without
// one are created.
type SchemaDraft struct {
	Name       string     `json:"schemaName" yaml:"name"`
	Properties []Property `json:"schemaProperties" yaml:"properties"`
}
