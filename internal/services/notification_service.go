// internal/services/notification_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/utils"
)

// Notifier delivers a single notification.
type Notifier interface {
	Notify(ctx context.Context, n *models.AdminNotification) error
}

// InAppNotifier stores notifications as admin_notifications rows.
type InAppNotifier struct {
	db *gorm.DB
}

func NewInAppNotifier(db *gorm.DB) *InAppNotifier {
	return &InAppNotifier{db: db}
}

func (n *InAppNotifier) Notify(ctx context.Context, notification *models.AdminNotification) error {
	if err := n.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// NotificationService sends ledger notifications in the background. Delivery failures are
// logged and counted; they never reach the operation that triggered them.
type NotificationService struct {
	db       *gorm.DB
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewNotificationService(db *gorm.DB, notifier Notifier) *NotificationService {
	if notifier == nil {
		notifier = NewInAppNotifier(db)
	}
	return &NotificationService{
		db:       db,
		notifier: notifier,
		timeout:  10 * time.Second,
	}
}

// Wait blocks until every dispatched notification has been attempted.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) dispatch(notifications []*models.AdminNotification) {
	if len(notifications) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		for _, n := range notifications {
			if err := s.notifier.Notify(ctx, n); err != nil {
				notificationFailures.Inc()
				logrus.WithError(err).WithFields(logrus.Fields{
					"type":         n.Type,
					"recipient_id": n.RecipientID,
					"resource_id":  n.RelatedResourceID,
				}).Warn("Failed to deliver notification")
			}
		}
	}()
}

// Dispute notifications
func (s *NotificationService) NotifyDisputeFlagged(record models.OwnershipRecord, stakeholders []uuid.UUID) {
	title := "Ownership Dispute Filed"
	message := fmt.Sprintf("The %d bps ownership record of creator %s on asset %s has been disputed: %s",
		record.ShareBps, record.CreatorID, record.AssetID, record.DisputeReason)

	notifications := s.forStakeholders(stakeholders, models.NotificationTypeDisputeFlagged, title, message, "medium", record.ID)
	// Admin review queue
	notifications = append(notifications, &models.AdminNotification{
		Type:                models.NotificationTypeDisputeFlagged,
		Title:               "Ownership Dispute Requires Review",
		Message:             message,
		Priority:            "high",
		RelatedResourceType: "ownership_record",
		RelatedResourceID:   &record.ID,
	})
	s.dispatch(notifications)
}

func (s *NotificationService) NotifyDisputeResolved(record models.OwnershipRecord, stakeholders []uuid.UUID) {
	title := "Ownership Dispute Resolved"
	message := fmt.Sprintf("The dispute on ownership record %s of asset %s was resolved with %s",
		record.ID, record.AssetID, record.ResolutionAction)
	if record.ResolutionNotes != "" {
		message += ": " + record.ResolutionNotes
	}
	s.dispatch(s.forStakeholders(stakeholders, models.NotificationTypeDisputeResolved, title, message, "medium", record.ID))
}

// Transfer notifications
func (s *NotificationService) NotifyTransfer(assetID, from, to uuid.UUID, shareBps int) {
	title := "Ownership Transferred"
	message := fmt.Sprintf("%d bps of asset %s moved from creator %s to creator %s", shareBps, assetID, from, to)
	s.dispatch(s.forStakeholders([]uuid.UUID{from, to}, models.NotificationTypeTransfer, title, message, "low", assetID))
}

func (s *NotificationService) forStakeholders(recipients []uuid.UUID, notificationType, title, message, priority string, resourceID uuid.UUID) []*models.AdminNotification {
	resourceType := "ownership_record"
	if notificationType == models.NotificationTypeTransfer {
		resourceType = "asset"
	}

	seen := make(map[uuid.UUID]bool, len(recipients))
	out := make([]*models.AdminNotification, 0, len(recipients))
	for _, recipient := range recipients {
		if recipient == uuid.Nil || seen[recipient] {
			continue
		}
		seen[recipient] = true
		recipientID := recipient
		related := resourceID
		out = append(out, &models.AdminNotification{
			RecipientID:         &recipientID,
			Type:                notificationType,
			Title:               title,
			Message:             message,
			Priority:            priority,
			RelatedResourceType: resourceType,
			RelatedResourceID:   &related,
		})
	}
	return out
}

// ListNotifications returns a recipient's notifications, newest first. A nil recipient
// lists the admin review queue.
func (s *NotificationService) ListNotifications(ctx context.Context, recipientID *uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.WithContext(ctx).Model(&models.AdminNotification{})
	if recipientID != nil {
		query = query.Where("recipient_id = ?", *recipientID)
	} else {
		query = query.Where("recipient_id IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	var notifications []models.AdminNotification
	if err := utils.ApplyPagination(query.Order("created_at DESC"), params).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	result := utils.CreatePaginationResult(notifications, total, params)
	return &result, nil
}

// MarkNotificationRead marks one of the recipient's notifications as read.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, notificationID, recipientID uuid.UUID) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.AdminNotification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Updates(map[string]interface{}{"status": "read", "read_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to update notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
