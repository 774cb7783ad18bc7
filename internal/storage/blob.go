package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/kode4food/wireflow/pkg/api"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Blob keeps the document as a JSON object in a gocloud bucket, supporting
// S3, GCS, Azure Blob Storage, local directories and memory
type Blob struct {
	bucket *blob.Bucket
	key    string
}

var _ Store = (*Blob)(nil)

const flowsObject = "flows.json"

// NewBlob opens the bucket at bucketURL
func NewBlob(ctx context.Context, bucketURL, prefix string) (*Blob, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &Blob{
		bucket: bucket,
		key:    path.Join(prefix, flowsObject),
	}, nil
}

func (b *Blob) Load(ctx context.Context) (*api.FlowState, error) {
	data, err := b.bucket.ReadAll(ctx, b.key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return EmptyState(), nil
		}
		return nil, err
	}

	var st api.FlowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	return &st, nil
}

func (b *Blob) Save(
	ctx context.Context, flows api.FlowSet,
) (*api.FlowState, error) {
	st := NewState(flows)
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	if err := b.bucket.WriteAll(ctx, b.key, data, nil); err != nil {
		return nil, err
	}
	return st, nil
}

func (b *Blob) Close() error {
	return b.bucket.Close()
}
