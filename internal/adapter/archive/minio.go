// Package archive stores run records in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// ObjectStore is the subset of the minio client the archiver uses.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver writes one JSON object per run under runs/<test_id>/<run_id>.json.
type Archiver struct {
	store  ObjectStore
	bucket string
	prefix string
}

var _ ObjectStore = (*minio.Client)(nil)

// New wraps an object store.
func New(store ObjectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket, prefix: "runs"}
}

// NewMinio connects to endpoint. A scheme on endpoint overrides useSSL.
func NewMinio(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archiver, error) {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		useSSL = false
		endpoint = strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		useSSL = true
		endpoint = strings.TrimPrefix(endpoint, "https://")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object storage client")
	}
	return New(client, bucket), nil
}

// Key returns the object name of a run.
func (a *Archiver) Key(run domain.RunRecord) string {
	return path.Join(a.prefix, run.TestID, run.RunID+".json")
}

// Archive uploads a run record and returns its object name.
func (a *Archiver) Archive(ctx context.Context, run domain.RunRecord) (string, error) {
	body, err := json.Marshal(run)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode run")
	}
	key := a.Key(run)
	_, err = a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"test-id": run.TestID,
			"run-id":  run.RunID,
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", key)
	}
	return key, nil
}
