package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropertyTypeValidate(t *testing.T) {
	tests := []struct {
		name    string
		typ     PropertyType
		wantErr bool
	}{
		{"string", PropertyType{Kind: KindString}, false},
		{"date", PropertyType{Kind: KindDate}, false},
		{"enum with values", PropertyType{Kind: KindEnum, Values: []string{"a", "b"}}, false},
		{"enum without values", PropertyType{Kind: KindEnum}, true},
		{"enum repeated value", PropertyType{Kind: KindEnum, Values: []string{"a", "a"}}, true},
		{"values on non-enum", PropertyType{Kind: KindNumber, Values: []string{"1"}}, true},
		{"unknown kind", PropertyType{Kind: "float"}, true},
		{"empty kind", PropertyType{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.typ.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := Property{Name: "status", Type: PropertyType{Kind: KindEnum, Values: []string{"on"}}}
	c := p.Clone()
	c.Type.Values[0] = "off"
	assert.Equal(t, "on", p.Type.Values[0])

	s := Schema{PropertyIDs: []string{"a"}}
	sc := s.Clone()
	sc.PropertyIDs[0] = "b"
	assert.Equal(t, "a", s.PropertyIDs[0])

	assert.NotNil(t, Schema{}.Clone().PropertyIDs)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "café", NormalizeName("  café "))
	assert.Equal(t, "plain", NormalizeName("plain"))
}

func TestDuplicatePropertyNames(t *testing.T) {
	props := []Property{
		{Name: "a"}, {Name: "b"}, {Name: " a"}, {Name: "c"}, {Name: "b"}, {Name: "a"},
	}
	assert.Equal(t, []string{"a", "b"}, DuplicatePropertyNames(props))
	assert.Empty(t, DuplicatePropertyNames([]Property{{Name: "x"}, {Name: "y"}}))
}
