package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/testutil"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createSchemaStore opens a schema store in a temp dir with sequential ids.
func createSchemaStore(t *testing.T) *SchemaStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schemas.db")
	s, err := OpenSchemaStore(path, WithIDGenerator(testutil.NewSequentialIDs()))
	if err != nil {
		t.Fatalf("OpenSchemaStore() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createPropertyStore opens a property store in a temp dir with sequential
// ids offset from the schema ids so the two never collide in assertions.
func createPropertyStore(t *testing.T) *PropertyStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "properties.db")
	gen := testutil.NewSequentialIDs()
	for i := 0; i < 100; i++ {
		gen.NewID()
	}
	s, err := OpenPropertyStore(path, WithIDGenerator(gen))
	if err != nil {
		t.Fatalf("OpenPropertyStore() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSchema(name string, propIDs ...string) model.Schema {
	return model.Schema{
		Name:        name,
		PropertyIDs: propIDs,
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.db")

	s, err := OpenSchemaStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.False(t, os.IsNotExist(err), "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSchemaStore(path)
		require.NoError(t, err, "open iteration %d", i)
		s.Close()
	}

	s, err := OpenSchemaStore(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, len(schemaMigrations), version)

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_schemas_name'",
	).Scan(&name)
	assert.NoError(t, err, "unique name index missing")
}

func TestOpen_Pragmas(t *testing.T) {
	s := createSchemaStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestRunMigrations_AppliesOnlyPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var calls []int
	migrations := []migration{
		func(*sql.DB) error { calls = append(calls, 1); return nil },
		func(*sql.DB) error { calls = append(calls, 2); return nil },
	}

	require.NoError(t, runMigrations(db, migrations[:1]))
	require.NoError(t, runMigrations(db, migrations))
	require.NoError(t, runMigrations(db, migrations))

	assert.Equal(t, []int{1, 2}, calls)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID(testutil.ID(1)))
	assert.NoError(t, ValidateID(UUIDv7Generator{}.NewID()))

	for _, bad := range []string{"", "123", "not-a-uuid", "00000000-0000-7000-8000-00000000000Z"} {
		err := ValidateID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", bad)
	}
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen.NewID()
		require.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestMarshalStrings_NilIsEmptyArray(t *testing.T) {
	got, err := marshalStrings(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", got)

	list, err := unmarshalStrings(got)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
