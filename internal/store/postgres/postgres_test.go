package postgres

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pavilion/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:6543/pavilion?sslmode=require", DSN(ClientConfig{
		Host: "db", Port: 6543, Database: "pavilion", User: "u", Password: "p", SSLMode: "require",
	}))
	assert.Equal(t, "postgres://u:p@localhost:5432/pavilion?sslmode=disable", DSN(ClientConfig{
		Database: "pavilion", User: "u", Password: "p",
	}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "  postgres://explicit ", Host: "ignored"}))
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
	assert.IsNonDecreasing(t, names)
}

func TestToBigint(t *testing.T) {
	n, err := toBigint(math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)

	_, err = toBigint(math.MaxInt64 + 1)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestGameArgsRejectsOversizedCounters(t *testing.T) {
	args, err := gameArgs(domain.Game{ID: 1, Prices: domain.Pair{Positive: 70, Negative: 30}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(70), int64(30), int64(0), int64(0), int64(0), int64(0)}, args)

	_, err = gameArgs(domain.Game{ID: 1, MaxQuantity: domain.Pair{Positive: math.MaxUint64}})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestGameQueryLocksOnlyForWrites(t *testing.T) {
	assert.True(t, strings.HasSuffix(gameQuery(true), "WHERE id = $1 FOR UPDATE"))
	assert.True(t, strings.HasSuffix(gameQuery(false), "WHERE id = $1"))
	assert.NotContains(t, gameQuery(false), "FOR UPDATE")
}

func TestAuditListQuery(t *testing.T) {
	q, args := auditListQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log ORDER BY id DESC", q)
	assert.Empty(t, args)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	q, args = auditListQuery(domain.ListOpts{Since: &since, Until: &until, Limit: 10, Offset: 20})
	assert.Equal(t,
		"SELECT id, event, detail, created_at FROM audit_log WHERE created_at >= $1 AND created_at <= $2 ORDER BY id DESC LIMIT $3 OFFSET $4",
		q)
	assert.Equal(t, []any{since, until, 10, 20}, args)
}
