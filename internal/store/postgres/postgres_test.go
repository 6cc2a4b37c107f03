package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/arb?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "arb"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestPaginate(t *testing.T) {
	q, args := paginate("SELECT 1 WHERE a = $1", []any{"x"}, 2, "t DESC", 10, 20)
	assert.Equal(t, "SELECT 1 WHERE a = $1 ORDER BY t DESC LIMIT $2 OFFSET $3", q)
	assert.Equal(t, []any{"x", 10, 20}, args)

	q, args = paginate("SELECT 1", nil, 1, "t", 0, 0)
	assert.Equal(t, "SELECT 1 ORDER BY t", q)
	assert.Empty(t, args)
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_executions.sql", "002_audit_log.sql"}, names)
}

func TestApplyStatus(t *testing.T) {
	for _, tt := range []struct {
		status           domain.ExecStatus
		success, partial bool
	}{
		{domain.ExecFilled, true, false},
		{domain.ExecPartial, false, true},
		{domain.ExecFailed, false, false},
	} {
		var res domain.ExecutionResult
		applyStatus(&res, tt.status)
		assert.Equal(t, tt.success, res.Success, tt.status)
		assert.Equal(t, tt.partial, res.Partial, tt.status)
		assert.Equal(t, tt.status, res.Status())
	}
}
