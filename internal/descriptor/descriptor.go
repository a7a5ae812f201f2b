package descriptor

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/schemata/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// ErrUnsupportedFormat is returned for a file extension Load does not know.
var ErrUnsupportedFormat = errors.New("unsupported descriptor format")

// Document is a schema definition: a name and its ordered properties.
type Document struct {
	Name       string           `yaml:"name" json:"name"`
	Properties []model.Property `yaml:"properties" json:"properties"`
}

// Descriptor returns the caller-controlled fields of a new schema.
func (d Document) Descriptor() model.SchemaDescriptor {
	return model.SchemaDescriptor{Name: d.Name}
}

// Draft returns the document as an update request.
func (d Document) Draft() model.SchemaDraft {
	return model.SchemaDraft{Name: d.Name, Properties: d.PropertyList()}
}

// PropertyList returns the properties, never nil.
func (d Document) PropertyList() []model.Property {
	if d.Properties == nil {
		return []model.Property{}
	}
	return d.Properties
}

// Validate checks the document the way the orchestrator will: a
// non-empty name, valid property types and distinct property names.
func (d Document) Validate() error {
	if model.NormalizeName(d.Name) == "" {
		return &LoadError{Field: "name", Message: "schema name is required"}
	}
	for i, p := range d.Properties {
		field := fmt.Sprintf("properties[%d]", i)
		if model.NormalizeName(p.Name) == "" {
			return &LoadError{Field: field, Message: "property name is required"}
		}
		if err := p.Type.Validate(); err != nil {
			return &LoadError{Field: field, Message: err.Error()}
		}
	}
	if dups := model.DuplicatePropertyNames(d.Properties); len(dups) > 0 {
		return &LoadError{Field: "properties", Message: "duplicate property names: " + strings.Join(dups, ", ")}
	}
	return nil
}

// LoadError reports an invalid descriptor, with a source position when
// one is known.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a descriptor file, choosing the parser by extension, and
// validates it.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var doc *Document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		doc, err = ParseYAML(data)
	case ".cue":
		doc, err = ParseCUE(filepath.Base(path), data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseYAML decodes a YAML (or JSON) descriptor. Unknown fields are
// rejected.
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse YAML descriptor: %w", err)
	}
	return &doc, nil
}

// ParseCUE compiles a CUE descriptor, unifies it with #Schema and decodes
// the result. filename is used in error positions.
func ParseCUE(filename string, data []byte) (*Document, error) {
	ctx := cuecontext.New()

	def := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Schema"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("compile #Schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw struct {
		Name       string `json:"name"`
		Properties []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type struct {
				Kind   string   `json:"kind"`
				Values []string `json:"values"`
			} `json:"type"`
		} `json:"properties"`
	}
	if err := unified.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}

	doc := &Document{Name: raw.Name, Properties: make([]model.Property, 0, len(raw.Properties))}
	for _, p := range raw.Properties {
		prop := model.Property{
			ID:   p.ID,
			Name: p.Name,
			Type: model.PropertyType{Kind: model.PropertyKind(p.Type.Kind)},
		}
		if len(p.Type.Values) > 0 {
			prop.Type.Values = p.Type.Values
		}
		doc.Properties = append(doc.Properties, prop)
	}
	return doc, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &LoadError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
