// internal/services/export_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
)

// ExportService writes point-in-time ownership snapshots for the payout job. Snapshots go
// to S3 when credentials are configured and to a local directory otherwise.
type ExportService struct {
	ledgerBase
	s3Client s3iface.S3API
	config   *config.Config
}

// OwnershipSnapshot is the document the payout job reads.
type OwnershipSnapshot struct {
	AssetID       uuid.UUID       `json:"asset_id"`
	AsOf          time.Time       `json:"as_of"`
	LedgerVersion int64           `json:"ledger_version"`
	TotalBps      int             `json:"total_bps"`
	Owners        []SnapshotOwner `json:"owners"`
	ExportedAt    time.Time       `json:"exported_at"`
}

type SnapshotOwner struct {
	OwnershipID   uuid.UUID `json:"ownership_id"`
	CreatorID     uuid.UUID `json:"creator_id"`
	ShareBps      int       `json:"share_bps"`
	OwnershipType string    `json:"ownership_type"`
	Disputed      bool      `json:"disputed"`
}

type ExportResult struct {
	Location string             `json:"location"`
	Key      string             `json:"key"`
	Size     int64              `json:"size"`
	Snapshot *OwnershipSnapshot `json:"snapshot"`
}

func NewExportService(store *database.LedgerStore, cfg *config.Config) (*ExportService, error) {
	svc := &ExportService{ledgerBase: newLedgerBase(store, cfg), config: cfg}
	if cfg.AWS.AccessKeyID == "" {
		// Local exports for development
		return svc, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	svc.s3Client = s3.New(sess)
	return svc, nil
}

// NewExportServiceWithClient uses the given S3 client instead of building one from config.
func NewExportServiceWithClient(store *database.LedgerStore, cfg *config.Config, client s3iface.S3API) *ExportService {
	return &ExportService{ledgerBase: newLedgerBase(store, cfg), s3Client: client, config: cfg}
}

// BuildSnapshot returns the owners of an asset at an instant. An asset whose shares do not
// add up at that instant is not exported.
func (s *ExportService) BuildSnapshot(ctx context.Context, assetID uuid.UUID, at *time.Time) (*OwnershipSnapshot, error) {
	snapshot, err := s.store.LoadLedger(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := ledger.ValidateTemporalOwnership(snapshot.Records).Err(); err != nil {
		return nil, err
	}

	now := s.now()
	asOf := now
	if at != nil {
		asOf = at.UTC()
	}
	if asOf.After(now) {
		return nil, ledger.NewValidationError("at", "cannot export a future instant")
	}

	out := &OwnershipSnapshot{
		AssetID:       assetID,
		AsOf:          asOf,
		LedgerVersion: snapshot.Version,
		Owners:        []SnapshotOwner{},
		ExportedAt:    now,
	}
	for _, r := range ledger.ActiveAt(snapshot.Records, asOf) {
		out.TotalBps += r.ShareBps
		out.Owners = append(out.Owners, SnapshotOwner{
			OwnershipID:   r.ID,
			CreatorID:     r.CreatorID,
			ShareBps:      r.ShareBps,
			OwnershipType: string(r.OwnershipType),
			Disputed:      r.DisputeStatus == models.DisputeStatusDisputed,
		})
	}
	if len(out.Owners) == 0 {
		return nil, ledger.NewValidationError("at", "asset %s had no owners at %s", assetID, asOf.Format(time.RFC3339))
	}
	return out, nil
}

// ExportOwnershipSnapshot builds a snapshot and stores it.
func (s *ExportService) ExportOwnershipSnapshot(ctx context.Context, assetID uuid.UUID, at *time.Time) (result *ExportResult, err error) {
	defer func(started time.Time) { observeOperation(opExport, started, err) }(time.Now())

	snapshot, err := s.BuildSnapshot(ctx, assetID, at)
	if err != nil {
		return nil, err
	}
	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := s.snapshotKey(snapshot)
	if s.s3Client != nil {
		return s.uploadToS3(ctx, body, key, snapshot)
	}
	return s.writeLocal(body, key, snapshot)
}

func (s *ExportService) uploadToS3(ctx context.Context, body []byte, key string, snapshot *OwnershipSnapshot) (*ExportResult, error) {
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]*string{
			"asset-id":       aws.String(snapshot.AssetID.String()),
			"ledger-version": aws.String(fmt.Sprintf("%d", snapshot.LedgerVersion)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"asset_id": snapshot.AssetID,
		"bucket":   s.config.AWS.S3Bucket,
		"key":      key,
	}).Info("Ownership snapshot exported")

	return &ExportResult{
		Location: fmt.Sprintf("s3://%s/%s", s.config.AWS.S3Bucket, key),
		Key:      key,
		Size:     int64(len(body)),
		Snapshot: snapshot,
	}, nil
}

func (s *ExportService) writeLocal(body []byte, key string, snapshot *OwnershipSnapshot) (*ExportResult, error) {
	path := filepath.Join(s.config.Ledger.ExportDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"asset_id": snapshot.AssetID,
		"path":     path,
	}).Info("Ownership snapshot exported")

	return &ExportResult{
		Location: path,
		Key:      key,
		Size:     int64(len(body)),
		Snapshot: snapshot,
	}, nil
}

func (s *ExportService) snapshotKey(snapshot *OwnershipSnapshot) string {
	name := fmt.Sprintf("%s_v%d.json", snapshot.AsOf.Format("20060102T150405.000000Z"), snapshot.LedgerVersion)
	if s.config.AWS.ExportPrefix != "" {
		return fmt.Sprintf("%s/%s/%s", s.config.AWS.ExportPrefix, snapshot.AssetID, name)
	}
	return fmt.Sprintf("%s/%s", snapshot.AssetID, name)
}
