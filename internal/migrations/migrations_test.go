package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInitialSchema(t *testing.T) {
	tmpDir := t.TempDir()
	schema := "CREATE TABLE IF NOT EXISTS contacts (id TEXT PRIMARY KEY);"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "001_initial_schema.sql"), []byte(schema), 0o644))

	originalDir := MigrationsDir
	MigrationsDir = tmpDir
	defer func() { MigrationsDir = originalDir }()

	content, err := GetInitialSchema()
	require.NoError(t, err)
	assert.Equal(t, schema, content)
}

func TestGetInitialSchemaMissing(t *testing.T) {
	originalDir := MigrationsDir
	MigrationsDir = filepath.Join(t.TempDir(), "nowhere")
	defer func() { MigrationsDir = originalDir }()

	_, err := GetInitialSchema()
	assert.Error(t, err)
}
