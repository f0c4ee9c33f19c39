package main

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripComments(t *testing.T) {
	stmt := "-- header comment\n-- more commentary\nCREATE TABLE IF NOT EXISTS letter_sequences (\n    year INT PRIMARY KEY\n)"
	got := stripComments(stmt)
	assert.True(t, strings.HasPrefix(got, "CREATE TABLE"))
	assert.NotContains(t, got, "--")

	assert.Equal(t, "", stripComments("-- only a comment"))
	assert.Equal(t, "", stripComments("   \n\t"))
	assert.Equal(t, "SELECT 1", stripComments("\nSELECT 1\n"))
}

func TestMigrationFileKeepsEveryStatement(t *testing.T) {
	sqlContent, err := os.ReadFile("../../migrations/001_core_tables.sql")
	require.NoError(t, err)

	var executed []string
	for _, stmt := range strings.Split(string(sqlContent), ";") {
		stmt = stripComments(stmt)
		if stmt == "" {
			continue
		}
		executed = append(executed, stmt)
	}

	joined := strings.Join(executed, ";\n")
	assert.Contains(t, joined, "CREATE EXTENSION IF NOT EXISTS pgcrypto")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS letter_sequences")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS queue_entries")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS audit_log")
}
