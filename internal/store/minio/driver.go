// Package minio provides a MinIO / S3-compatible implementation of
// store.Store, for self-hosted deployments where the object tree lives in
// a bucket instead of a Pubky homeserver.
//
// Usage:
//
//	cfg := store.DefaultConfig(store.ProviderMinIO)
//	cfg.Endpoint = "localhost:9000"
//	cfg.AccessKey, cfg.SecretKey = "minioadmin", "minioadmin"
//	cfg.Bucket = "pubky"
//	st, err := minio.New(ctx, cfg)
package minio

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/keys"
	"github.com/gillohner/pubky-tools/internal/store"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Driver is a MinIO implementation of store.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
}

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *store.Config) (*Driver, error) {
	if cfg.Bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "minio bucket is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindNetworkFailure, "failed to create minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.Bucket}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// --- store.Store implementation ---

// Ping verifies the bucket exists and is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if !exists {
		return errs.Newf(errs.ErrKindNotFound, "bucket %s does not exist", d.bucket)
	}
	return nil
}

// Close is a no-op — the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// Get returns the bytes stored at key.
func (d *Driver) Get(ctx context.Context, key string) ([]byte, error) {
	name, err := objectName(key)
	if err != nil {
		return nil, err
	}

	obj, err := d.client.GetObject(ctx, d.bucket, name, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}
	defer obj.Close()

	value, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err, "failed to read object")
	}
	return value, nil
}

// Put stores value at key, overwriting any previous object.
func (d *Driver) Put(ctx context.Context, key string, value []byte) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}

	_, err = d.client.PutObject(ctx, d.bucket, name,
		bytes.NewReader(value), int64(len(value)),
		miniogo.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return mapError(err, "failed to put object")
	}
	return nil
}

// Delete removes the object at key.
func (d *Driver) Delete(ctx context.Context, key string) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}

	// RemoveObject succeeds on absent keys; stat first so delete-missing
	// surfaces as NotFound like the other drivers.
	if _, err := d.client.StatObject(ctx, d.bucket, name, miniogo.StatObjectOptions{}); err != nil {
		return mapError(err, "failed to stat object before delete")
	}

	if err := d.client.RemoveObject(ctx, d.bucket, name, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

// List returns the full keys stored under prefix, at arbitrary depth.
func (d *Driver) List(ctx context.Context, prefix string, opts store.ListOptions) ([]string, error) {
	name, err := objectName(prefix)
	if err != nil {
		return nil, err
	}

	listOpts := miniogo.ListObjectsOptions{
		Prefix:    name,
		Recursive: true,
	}
	if opts.Cursor != "" && !opts.Reverse {
		cursorName, err := objectName(opts.Cursor)
		if err != nil {
			return nil, err
		}
		listOpts.StartAfter = cursorName
	}

	// The bucket only lists ascending. A forward walk can resume and stop
	// early; a reverse walk has to collect everything below the cursor
	// first, then flip and trim, so Reverse+Limit yields the last keys
	// like the other drivers.
	var result []string
	for obj := range d.client.ListObjects(ctx, d.bucket, listOpts) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list objects")
		}

		key := keys.Scheme + obj.Key
		if opts.Reverse && opts.Cursor != "" && key >= opts.Cursor {
			break
		}

		result = append(result, key)
		if !opts.Reverse && opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}

	if opts.Reverse {
		result = reversePage(result, opts.Limit)
	}
	return result, nil
}

// reversePage flips an ascending listing and trims it to limit, so the
// page holds the highest keys in descending order.
func reversePage(asc []string, limit int) []string {
	for i, j := 0, len(asc)-1; i < j; i, j = i+1, j-1 {
		asc[i], asc[j] = asc[j], asc[i]
	}
	if limit > 0 && len(asc) > limit {
		asc = asc[:limit]
	}
	return asc
}

// --- internals ---

// objectName maps a pubky:// key onto its bucket object name:
// "pubky://owner/pub/a.txt" becomes "owner/pub/a.txt".
func objectName(rawKey string) (string, error) {
	k, err := keys.Parse(rawKey)
	if err != nil {
		return "", err
	}
	return k.Owner() + k.Path(), nil
}

// mapError converts a MinIO SDK error into a typed error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	resp := miniogo.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errs.Wrap(errs.ErrKindUnauthorized, msg, err)
	}

	return errs.Wrap(errs.ErrKindNetworkFailure, msg, err)
}
