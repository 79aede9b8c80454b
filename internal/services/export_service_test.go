package services

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/imi-ownership/internal/ledger"
)

type recordingS3 struct {
	s3iface.S3API
	inputs []*s3.PutObjectInput
	bodies [][]byte
}

func (r *recordingS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	r.inputs = append(r.inputs, in)
	r.bodies = append(r.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestExportOwnershipSnapshot_Local(t *testing.T) {
	env := newTestEnv(t)
	a, b := uuid.New(), uuid.New()
	asset := env.root(t, a)
	env.transfer(t, asset, a, b, 2500)

	res, err := env.exports.ExportOwnershipSnapshot(context.Background(), asset, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "ownership/"+asset.String()+"/"))
	assert.Equal(t, 10000, res.Snapshot.TotalBps)
	assert.Len(t, res.Snapshot.Owners, 2)

	raw, err := os.ReadFile(res.Location)
	require.NoError(t, err)
	var stored OwnershipSnapshot
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, asset, stored.AssetID)
	assert.Equal(t, int64(1), stored.LedgerVersion)
	assert.Equal(t, res.Size, int64(len(raw)))
}

func TestExportOwnershipSnapshot_S3(t *testing.T) {
	env := newTestEnv(t)
	client := &recordingS3{}
	exports := NewExportServiceWithClient(env.store, env.cfg, client)
	exports.now = env.clock.Now

	a := uuid.New()
	asset := env.root(t, a)
	res, err := exports.ExportOwnershipSnapshot(context.Background(), asset, nil)
	require.NoError(t, err)

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "snapshots", aws.StringValue(client.inputs[0].Bucket))
	assert.Equal(t, res.Key, aws.StringValue(client.inputs[0].Key))
	assert.Equal(t, "application/json", aws.StringValue(client.inputs[0].ContentType))
	assert.Equal(t, "s3://snapshots/"+res.Key, res.Location)

	var stored OwnershipSnapshot
	require.NoError(t, json.Unmarshal(client.bodies[0], &stored))
	require.Len(t, stored.Owners, 1)
	assert.Equal(t, a, stored.Owners[0].CreatorID)
}

func TestBuildSnapshot_PastAndFuture(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	asset := env.root(t, a)
	beforeTransfer := env.clock.Now()
	env.transfer(t, asset, a, b, 5000)

	past, err := env.exports.BuildSnapshot(ctx, asset, &beforeTransfer)
	require.NoError(t, err)
	require.Len(t, past.Owners, 1)
	assert.Equal(t, 10000, past.Owners[0].ShareBps)

	future := env.clock.Peek().Add(time.Hour)
	_, err = env.exports.BuildSnapshot(ctx, asset, &future)
	assert.Equal(t, ledger.KindValidation, ledger.KindOf(err))

	ancient := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = env.exports.BuildSnapshot(ctx, asset, &ancient)
	assert.Equal(t, ledger.KindValidation, ledger.KindOf(err))
}
