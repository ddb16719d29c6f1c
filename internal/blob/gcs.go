package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"
)

// GCSStore uploads blobs to a Cloud Storage bucket through the JSON API.
type GCSStore struct {
	svc    *gstorage.Service
	bucket string
}

// NewGCSStore builds a store from service-account JSON credentials. Empty
// credentials fall back to application default credentials.
func NewGCSStore(ctx context.Context, bucket string, credentialsJSON []byte) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}
	opts := []option.ClientOption{option.WithScopes(gstorage.DevstorageReadWriteScope)}
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	svc, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &GCSStore{svc: svc, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	key, err := checkKey(name)
	if err != nil {
		return "", err
	}
	obj := &gstorage.Object{
		Name:        key,
		ContentType: http.DetectContentType(data),
	}
	stored, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(bytes.NewReader(data)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload %s to bucket %s: %w", obj.Name, s.bucket, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, escapeKey(stored.Name)), nil
}
