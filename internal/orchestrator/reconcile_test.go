package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemata/internal/model"
)

func TestDiff_Partition(t *testing.T) {
	prev := []string{"A", "B", "C"}
	desired := []model.Property{
		{ID: "B", Name: "b2"},
		{ID: "C", Name: "c"},
		{Name: "d"},
	}

	p, err := diff(prev, desired)
	require.NoError(t, err)

	assert.Equal(t, []model.Property{{ID: "B", Name: "b2"}, {ID: "C", Name: "c"}}, p.updates)
	assert.Equal(t, []string{"A"}, p.deletes)
	assert.Equal(t, []model.Property{{Name: "d"}}, p.creates)
	assert.Equal(t, []string{"B", "C", "D1"}, p.childIDs([]string{"D1"}))
}

func TestDiff_EmptyCases(t *testing.T) {
	p, err := diff(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, p.updates)
	assert.Empty(t, p.deletes)
	assert.Empty(t, p.creates)
	assert.Equal(t, []string{}, p.childIDs(nil))

	p, err = diff([]string{"A", "B"}, []model.Property{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, p.deletes, "previous order")

	p, err = diff(nil, []model.Property{{Name: "x"}, {Name: "y"}})
	require.NoError(t, err)
	assert.Len(t, p.creates, 2)
}

func TestDiff_UnknownIdentity(t *testing.T) {
	_, err := diff([]string{"A"}, []model.Property{{ID: "Z", Name: "z"}})
	assert.ErrorIs(t, err, ErrPropertyNotInSchema)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Z", se.PropertyID)
}

func TestDiff_RepeatedIdentity(t *testing.T) {
	_, err := diff([]string{"A"}, []model.Property{{ID: "A", Name: "a"}, {ID: "A", Name: "b"}})
	assert.ErrorIs(t, err, ErrInvalidValueInSchema)
}

func TestDiff_ReorderOnly(t *testing.T) {
	p, err := diff([]string{"A", "B", "C"}, []model.Property{{ID: "C"}, {ID: "A"}, {ID: "B"}})
	require.NoError(t, err)
	assert.Empty(t, p.deletes)
	assert.Empty(t, p.creates)
	assert.Equal(t, []string{"C", "A", "B"}, p.childIDs(nil))
}
