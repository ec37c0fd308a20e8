package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y IN (?, ?)`
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)`, Postgres.Rebind(q))
	assert.Equal(t, q, SQLite.Rebind(q))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("Postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, "000002", extractVersion("000002_market_state.up.sql"))
}
