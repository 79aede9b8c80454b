// internal/services/dispute_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/utils"
)

type DisputeService struct {
	ledgerBase
	notifications *NotificationService
}

type FlagDisputeRequest struct {
	Reason         string   `json:"reason" validate:"required,min=3,max=2000"`
	Evidence       []string `json:"evidence" validate:"max=20,dive,max=500"`
	IdempotencyKey string   `json:"-"`
}

type ResolveDisputeRequest struct {
	Action       models.ResolutionAction `json:"action" validate:"required,resolution_action"`
	Notes        string                  `json:"notes" validate:"max=2000"`
	ModifiedData *ledger.ModifiedData    `json:"modified_data,omitempty"`
}

// DisputeResolution reports the resolved record together with every record the resolution
// wrote.
type DisputeResolution struct {
	Before  models.OwnershipRecord   `json:"before"`
	After   models.OwnershipRecord   `json:"after"`
	Updated []models.OwnershipRecord `json:"updated"`
	Created []models.OwnershipRecord `json:"created"`
}

type DisputeFilter struct {
	utils.PaginationParams
	AssetID    *uuid.UUID
	CreatorID  *uuid.UUID
	DisputedBy *uuid.UUID
	From       *time.Time
	To         *time.Time
	Status     models.DisputeStatus
}

func NewDisputeService(store *database.LedgerStore, cfg *config.Config, notifications *NotificationService) *DisputeService {
	return &DisputeService{
		ledgerBase:    newLedgerBase(store, cfg),
		notifications: notifications,
	}
}

// FlagDispute marks a record as disputed and notifies the asset's stakeholders. Flagging a
// record that is already disputed or resolved fails.
func (s *DisputeService) FlagDispute(ctx context.Context, ownershipID, flaggerID uuid.UUID, req FlagDisputeRequest) (record *models.OwnershipRecord, err error) {
	defer func(started time.Time) { observeOperation(opFlagDispute, started, err) }(time.Now())

	if strings.TrimSpace(req.Reason) == "" {
		return nil, ledger.NewValidationError("reason", "is required")
	}
	if replay, err := s.replayOf(ctx, req.IdempotencyKey, opFlagDispute, ownershipID); err != nil || replay != nil {
		if err != nil {
			return nil, err
		}
		return s.store.FindRecord(ctx, *replay)
	}

	var notify func()
	record, err = withLedgerRetry(ctx, s.retry, opFlagDispute, func() (*models.OwnershipRecord, error) {
		target, err := s.store.FindRecord(ctx, ownershipID)
		if err != nil {
			return nil, err
		}
		snapshot, err := s.store.LoadLedger(ctx, target.AssetID)
		if err != nil {
			return nil, err
		}
		current, ok := findRecord(snapshot.Records, ownershipID)
		if !ok {
			return nil, ledger.ErrConcurrentModification
		}

		now := s.now()
		flagged, err := ledger.FlagDispute(current, ledger.FlagInput{
			Reason:    req.Reason,
			Evidence:  req.Evidence,
			FlaggerID: flaggerID,
			At:        now,
		})
		if err != nil {
			return nil, err
		}

		entry := auditEntry(ctx, models.AuditActionDisputeFlagged, flaggerID, "ownership_record", ownershipID, snapshot.Asset.ID,
			disputeState(current), disputeState(flagged))
		err = s.store.CommitIfUnchanged(ctx, snapshot.Asset.ID, snapshot.Version,
			ledger.ChangeSet{Updated: []models.OwnershipRecord{flagged}},
			commitOptions(entry, idempotencyKey(req.IdempotencyKey, opFlagDispute, ownershipID))...)
		if err != nil {
			return nil, err
		}

		recipients := stakeholders(snapshot.Asset, snapshot.Records, now)
		notify = func() { s.notifications.NotifyDisputeFlagged(flagged, recipients) }
		return &flagged, nil
	})
	if errors.Is(err, database.ErrDuplicateRequest) {
		replay, rerr := s.replayOf(ctx, req.IdempotencyKey, opFlagDispute, ownershipID)
		if rerr != nil {
			return nil, rerr
		}
		if replay == nil {
			return nil, fmt.Errorf("idempotency key %q vanished after a duplicate commit", req.IdempotencyKey)
		}
		return s.store.FindRecord(ctx, *replay)
	}
	if err != nil {
		return nil, err
	}

	if notify != nil && s.notifications != nil {
		notify()
	}
	return record, nil
}

// ResolveDispute closes a dispute. MODIFY and REMOVE rebalance the asset so its shares
// still add up; a resolution that cannot do so fails and the record stays disputed.
func (s *DisputeService) ResolveDispute(ctx context.Context, ownershipID, resolverID uuid.UUID, req ResolveDisputeRequest) (resolution *DisputeResolution, err error) {
	defer func(started time.Time) {
		logInternal(opResolveDispute, err)
		observeOperation(opResolveDispute, started, err)
	}(time.Now())

	if !req.Action.Valid() {
		return nil, ledger.NewValidationError("action", "unknown resolution action %q", req.Action)
	}

	var recipients []uuid.UUID
	resolution, err = withLedgerRetry(ctx, s.retry, opResolveDispute, func() (*DisputeResolution, error) {
		target, err := s.store.FindRecord(ctx, ownershipID)
		if err != nil {
			return nil, err
		}
		snapshot, err := s.store.LoadLedger(ctx, target.AssetID)
		if err != nil {
			return nil, err
		}

		now := s.now()
		res, err := ledger.ResolveDispute(snapshot.Records, ownershipID, ledger.ResolveInput{
			Action:     req.Action,
			Notes:      req.Notes,
			ResolverID: resolverID,
			Modified:   req.ModifiedData,
			At:         now,
		})
		if err != nil {
			return nil, err
		}

		entry := auditEntry(ctx, resolutionAuditAction(req.Action), resolverID, "ownership_record", ownershipID, snapshot.Asset.ID,
			map[string]interface{}{"record": res.Before},
			map[string]interface{}{"record": res.After, "updated": res.Changes.Updated, "created": res.Changes.Created})
		if err := s.store.CommitIfUnchanged(ctx, snapshot.Asset.ID, snapshot.Version, res.Changes, database.WithAudit(entry)); err != nil {
			return nil, err
		}

		recipients = stakeholders(snapshot.Asset, res.Changes.Apply(snapshot.Records), now)
		recipients = append(recipients, res.Before.CreatorID)
		if res.Before.DisputedBy != nil {
			recipients = append(recipients, *res.Before.DisputedBy)
		}
		return &DisputeResolution{
			Before:  res.Before,
			After:   res.After,
			Updated: res.Changes.Updated,
			Created: nonNil(res.Changes.Created),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifications != nil {
		s.notifications.NotifyDisputeResolved(resolution.After, recipients)
	}
	return resolution, nil
}

// GetDisputedOwnerships lists records by dispute status (disputed unless the filter says
// otherwise), most recently flagged first.
func (s *DisputeService) GetDisputedOwnerships(ctx context.Context, filter DisputeFilter) (*utils.PaginationResult, error) {
	status := filter.Status
	if status == "" {
		status = models.DisputeStatusDisputed
	}
	if !status.Valid() || status == models.DisputeStatusNone {
		return nil, ledger.NewValidationError("status", "must be disputed or resolved")
	}

	query := s.store.DB().WithContext(ctx).
		Select("ownership_records.*").
		Joins("JOIN assets ON assets.id = ownership_records.asset_id AND assets.deleted_at IS NULL").
		Where("ownership_records.dispute_status = ?", status)
	if filter.AssetID != nil {
		query = query.Where("ownership_records.asset_id = ?", *filter.AssetID)
	}
	if filter.CreatorID != nil {
		query = query.Where("ownership_records.creator_id = ?", *filter.CreatorID)
	}
	if filter.DisputedBy != nil {
		query = query.Where("ownership_records.disputed_by = ?", *filter.DisputedBy)
	}

	var records []models.OwnershipRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get disputed ownerships: %w", err)
	}

	// Date filtering runs here so it behaves the same on every driver.
	matched := make([]models.OwnershipRecord, 0, len(records))
	for _, r := range records {
		if r.DisputedAt == nil {
			continue
		}
		if filter.From != nil && r.DisputedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !r.DisputedAt.Before(*filter.To) {
			continue
		}
		matched = append(matched, r)
	}
	sortByDisputedAt(matched)

	start, end := filter.Bounds(len(matched))
	result := utils.CreatePaginationResult(matched[start:end], int64(len(matched)), filter.PaginationParams)
	return &result, nil
}

func resolutionAuditAction(action models.ResolutionAction) models.AuditAction {
	switch action {
	case models.ResolutionModify:
		return models.AuditActionDisputeModified
	case models.ResolutionRemove:
		return models.AuditActionDisputeRemoved
	default:
		return models.AuditActionDisputeConfirmed
	}
}

func disputeState(r models.OwnershipRecord) map[string]interface{} {
	return map[string]interface{}{
		"dispute_status":   r.DisputeStatus,
		"dispute_reason":   r.DisputeReason,
		"dispute_evidence": r.DisputeEvidence,
		"disputed_by":      r.DisputedBy,
		"disputed_at":      r.DisputedAt,
		"share_bps":        r.ShareBps,
	}
}

func findRecord(records []models.OwnershipRecord, id uuid.UUID) (models.OwnershipRecord, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return models.OwnershipRecord{}, false
}

func sortByDisputedAt(records []models.OwnershipRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DisputedAt.After(*records[j].DisputedAt)
	})
}

func nonNil(records []models.OwnershipRecord) []models.OwnershipRecord {
	if records == nil {
		return []models.OwnershipRecord{}
	}
	return records
}
