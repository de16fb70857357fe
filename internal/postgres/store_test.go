package postgres

import (
	"io/fs"
	"regexp"
	"testing"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListWhere(t *testing.T) {
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	where, args := listWhere(orders.ListFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = listWhere(orders.ListFilter{CustomerID: "c1", Status: orders.StatusPending, From: &from, To: &to})
	assert.Equal(t, " WHERE customer_id = $1 AND status = $2 AND created_at >= $3 AND created_at <= $4", where)
	assert.Equal(t, []any{"c1", "pending", from, to}, args)

	where, args = listWhere(orders.ListFilter{Status: orders.StatusCancelled})
	assert.Equal(t, " WHERE status = $1", where)
	assert.Equal(t, []any{"cancelled"}, args)
}

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	require.NoError(t, validateMigrations())
}

// Money and fractions are stored unscaled so line subtotals survive a round trip exactly.
func TestMigrationsKeepNumericUnscaled(t *testing.T) {
	scaled := regexp.MustCompile(`(?i)NUMERIC\s*\(`)
	files, err := fs.Glob(migrationFS, migrationDir+"/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, name := range files {
		body, err := fs.ReadFile(migrationFS, name)
		require.NoError(t, err)
		assert.False(t, scaled.Match(body), name)
	}
}
