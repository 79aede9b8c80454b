// internal/services/transfer_service.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
)

type TransferService struct {
	ledgerBase
	notifications *NotificationService
}

type TransferRequest struct {
	FromCreatorID uuid.UUID              `json:"from_creator_id" validate:"required"`
	ToCreatorID   uuid.UUID              `json:"to_creator_id" validate:"required"`
	ShareBps      int                    `json:"share_bps" validate:"bps"`
	Provenance    map[string]interface{} `json:"provenance,omitempty"`
}

type TransferResult struct {
	AssetID uuid.UUID                `json:"asset_id"`
	Ended   []models.OwnershipRecord `json:"ended"`
	Created []models.OwnershipRecord `json:"created"`
	Owners  []models.OwnershipRecord `json:"owners"`
}

func NewTransferService(store *database.LedgerStore, cfg *config.Config, notifications *NotificationService) *TransferService {
	return &TransferService{
		ledgerBase:    newLedgerBase(store, cfg),
		notifications: notifications,
	}
}

// Transfer moves part or all of one creator's share of an asset to another creator. Only
// the source creator or an admin may transfer.
func (s *TransferService) Transfer(ctx context.Context, assetID, requesterID uuid.UUID, asAdmin bool, req TransferRequest) (result *TransferResult, err error) {
	defer func(started time.Time) { observeOperation(opTransfer, started, err) }(time.Now())

	if !asAdmin && requesterID != req.FromCreatorID {
		return nil, ErrForbidden
	}

	result, err = withLedgerRetry(ctx, s.retry, opTransfer, func() (*TransferResult, error) {
		snapshot, err := s.store.LoadLedger(ctx, assetID)
		if err != nil {
			return nil, err
		}

		now := s.now()
		changes, err := ledger.PlanTransfer(snapshot.Records, ledger.TransferInput{
			AssetID:       assetID,
			FromCreatorID: req.FromCreatorID,
			ToCreatorID:   req.ToCreatorID,
			ShareBps:      req.ShareBps,
			RequesterID:   requesterID,
			Provenance:    req.Provenance,
			At:            now,
		})
		if err != nil {
			return nil, err
		}

		entry := auditEntry(ctx, models.AuditActionOwnershipTransfer, requesterID, "asset", assetID, assetID,
			map[string]interface{}{"owners": ledger.ActiveAt(snapshot.Records, now)},
			map[string]interface{}{
				"from_creator_id": req.FromCreatorID.String(),
				"to_creator_id":   req.ToCreatorID.String(),
				"share_bps":       req.ShareBps,
				"ended":           changes.Updated,
				"created":         changes.Created,
			})
		if err := s.store.CommitIfUnchanged(ctx, assetID, snapshot.Version, changes, database.WithAudit(entry)); err != nil {
			return nil, err
		}

		return &TransferResult{
			AssetID: assetID,
			Ended:   changes.Updated,
			Created: changes.Created,
			Owners:  ledger.ActiveAt(changes.Apply(snapshot.Records), now),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifications != nil {
		s.notifications.NotifyTransfer(assetID, req.FromCreatorID, req.ToCreatorID, req.ShareBps)
	}
	return result, nil
}
