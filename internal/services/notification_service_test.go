package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/utils"
)

func TestNotifyTransfer_ListAndMarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	from, to, asset := uuid.New(), uuid.New(), uuid.New()

	env.notifications.NotifyTransfer(asset, from, to, 1500)
	env.notifications.Wait()

	page := utils.PaginationParams{Page: 1, Limit: 10}
	res, err := env.notifications.ListNotifications(ctx, &to, page)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Total)
	n := res.Data.([]models.AdminNotification)[0]
	assert.Equal(t, models.NotificationTypeTransfer, n.Type)
	assert.Equal(t, asset, *n.RelatedResourceID)
	assert.Equal(t, "unread", n.Status)

	require.NoError(t, env.notifications.MarkNotificationRead(ctx, n.ID, to))
	assert.Error(t, env.notifications.MarkNotificationRead(ctx, n.ID, from), "only the recipient may mark it")

	res, err = env.notifications.ListNotifications(ctx, &to, page)
	require.NoError(t, err)
	read := res.Data.([]models.AdminNotification)[0]
	assert.Equal(t, "read", read.Status)
	assert.NotNil(t, read.ReadAt)

	queue, err := env.notifications.ListNotifications(ctx, nil, page)
	require.NoError(t, err)
	assert.Equal(t, int64(0), queue.Total)
}

func TestNotifyDisputeResolved_SkipsDuplicatesAndNil(t *testing.T) {
	env := newTestEnv(t)
	creator := uuid.New()
	record := models.OwnershipRecord{
		BaseModel:        models.BaseModel{ID: uuid.New()},
		AssetID:          uuid.New(),
		CreatorID:        creator,
		ResolutionAction: models.ResolutionConfirm,
	}

	env.notifications.NotifyDisputeResolved(record, []uuid.UUID{creator, creator, uuid.Nil})
	env.notifications.Wait()

	var count int64
	require.NoError(t, env.db.Model(&models.AdminNotification{}).Where("recipient_id = ?", creator).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
