// internal/services/ledger_base.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/utils"
)

// ErrForbidden is returned when the requester may not act on the asset.
var ErrForbidden = errors.New("requester is not allowed to perform this operation")

const (
	opConfirmAsset      = "confirm_asset"
	opCreateDerivative  = "create_derivative"
	opRetireAsset       = "retire_asset"
	opUpdatePermissions = "update_permissions"
	opAttachParent      = "attach_parent"
	opRecomputeLineage  = "recompute_lineage"
	opFlagDispute       = "flag_dispute"
	opResolveDispute    = "resolve_dispute"
	opTransfer          = "transfer"
	opExport            = "export_snapshot"
)

// ledgerBase is what every service that writes to the ledger shares.
type ledgerBase struct {
	store *database.LedgerStore
	retry RetryPolicy
	now   func() time.Time
}

func newLedgerBase(store *database.LedgerStore, cfg *config.Config) ledgerBase {
	return ledgerBase{
		store: store,
		retry: RetryPolicyFromConfig(cfg.Ledger),
		now:   defaultNow,
	}
}

func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// replayOf returns the resource a previous request with the same idempotency key produced.
// A key is bound to one operation on one target; reusing it elsewhere is a conflict.
func (b *ledgerBase) replayOf(ctx context.Context, key, operation string, target uuid.UUID) (*uuid.UUID, error) {
	stored, err := b.store.LookupIdempotencyKey(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	if stored.Operation != operation {
		return nil, &ledger.ConflictError{Reason: fmt.Sprintf("idempotency key %q was already used for %s", key, stored.Operation)}
	}
	if stored.ResourceID != target {
		return nil, &ledger.ConflictError{Reason: fmt.Sprintf("idempotency key %q was already used for %s on %s", key, operation, stored.ResourceID)}
	}
	id := stored.ResourceID
	return &id, nil
}

func idempotencyKey(key, operation string, resourceID uuid.UUID) *models.IdempotencyKey {
	if key == "" {
		return nil
	}
	return &models.IdempotencyKey{Key: key, Operation: operation, ResourceID: resourceID}
}

func commitOptions(audit *models.AuditLog, key *models.IdempotencyKey, extra ...database.CommitOption) []database.CommitOption {
	opts := []database.CommitOption{database.WithAudit(audit)}
	if key != nil {
		opts = append(opts, database.WithIdempotencyKey(key))
	}
	return append(opts, extra...)
}

func auditEntry(ctx context.Context, action models.AuditAction, actorID uuid.UUID, resourceType string, resourceID, assetID uuid.UUID, oldValues, newValues interface{}) *models.AuditLog {
	meta := utils.RequestMetaFrom(ctx)
	entry := &models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		AssetID:      &assetID,
		OldValues:    models.ToJSONB(oldValues),
		NewValues:    models.ToJSONB(newValues),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		ActorType:    meta.ActorType,
		RequestID:    meta.RequestID,
	}
	if actorID != uuid.Nil {
		entry.ActorID = &actorID
	}
	return entry
}

// stakeholders lists the asset's creator and every creator holding a share at t.
func stakeholders(asset models.Asset, records []models.OwnershipRecord, t time.Time) []uuid.UUID {
	out := []uuid.UUID{asset.CreatorID}
	for _, r := range ledger.ActiveAt(records, t) {
		out = append(out, r.CreatorID)
	}
	return out
}

// logInternal reports defects that indicate a bug rather than bad input.
func logInternal(operation string, err error) {
	var internal *ledger.InternalInvariantError
	if errors.As(err, &internal) {
		logrus.WithError(err).WithFields(logrus.Fields{
			"operation":  operation,
			"violations": len(internal.Violations),
		}).Error("Ledger produced records that violate its own invariants")
	}
}
