package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/bravo_premium_server/internal/testutil"
)

func TestUsageRepository_CountCustomDrills(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUsageRepository(db)

	monthStart := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	testutil.TestCustomDrill(t, db, 1, monthStart)
	testutil.TestCustomDrill(t, db, 1, monthStart.Add(10*24*time.Hour))
	testutil.TestCustomDrill(t, db, 1, monthStart.Add(-time.Second)) // 上个月
	testutil.TestCustomDrill(t, db, 1, monthEnd)                     // 下个月
	testutil.TestCustomDrill(t, db, 2, monthStart.Add(time.Hour))    // 其他用户

	count, err := repo.CountCustomDrills(context.Background(), 1, monthStart, monthEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUsageRepository_CountCompletedSessions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUsageRepository(db)

	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	testutil.TestCompletedSession(t, db, 1, day.Add(8*time.Hour))
	testutil.TestCompletedSession(t, db, 1, day.Add(-time.Hour))
	testutil.TestCompletedSession(t, db, 2, day.Add(time.Hour))

	count, err := repo.CountCompletedSessions(context.Background(), 1, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
