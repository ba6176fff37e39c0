package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/qs3c/bravo_premium_server/internal/model"
	"github.com/qs3c/bravo_premium_server/internal/testutil"
)

func TestAuditRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	userID := int64(7)
	entry := &model.AuditLog{
		UserID:   &userID,
		Action:   "verify_receipt",
		Endpoint: "/api/premium/verify-receipt",
		Method:   "POST",
		Status:   model.AuditStatusSuccess,
		Details:  datatypes.JSON(`{"platform":"ios"}`),
	}
	require.NoError(t, repo.Create(ctx, entry))
	assert.NotEqual(t, uuid.Nil, entry.ID)

	logs := testutil.UserAuditLogs(t, db, userID)
	require.Len(t, logs, 1)
	assert.Equal(t, entry.ID, logs[0].ID)
	assert.JSONEq(t, `{"platform":"ios"}`, string(logs[0].Details))
}

func TestAuditRepository_Create_KeepsOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	userID := int64(7)
	base := time.Now().UTC()
	for i, status := range []string{model.AuditStatusRateLimited, model.AuditStatusSuccess} {
		require.NoError(t, repo.Create(ctx, &model.AuditLog{
			UserID:    &userID,
			Action:    "validate",
			Endpoint:  "/api/premium/validate",
			Method:    "POST",
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	logs := testutil.UserAuditLogs(t, db, userID)
	require.Len(t, logs, 2)
	assert.Equal(t, model.AuditStatusSuccess, logs[0].Status)
	assert.Equal(t, int64(1), testutil.AuditCount(t, db, model.AuditStatusRateLimited))
}
