package drive

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/keys"
	"github.com/gillohner/pubky-tools/internal/store"
)

// blobsSegment is the directory segment holding raw blob objects next to
// the metadata records that reference them.
const blobsSegment = "blobs/"

// MetadataRecord is the small descriptor object written alongside a raw
// blob. The store has no content-type attribute of its own, so the record
// carries name, type and size, while Src points at the blob object.
type MetadataRecord struct {
	Name        string `json:"name"`
	CreatedAt   int64  `json:"created_at"` // microseconds since epoch
	Src         string `json:"src"`        // full pubky:// key of the blob
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// IsMetadata reports whether content structurally looks like a metadata
// record.
func IsMetadata(content []byte) bool {
	_, ok := ParseMetadata(content)
	return ok
}

// ParseMetadata attempts to read content as a metadata record.
//
// This is structural probing, not a guarantee: the record is accepted when
// all five fields are present with the right types and Src carries the
// pubky:// scheme. Any failure, including malformed JSON, means "ordinary
// content, not a metadata pointer" — never an error.
func ParseMetadata(content []byte) (*MetadataRecord, bool) {
	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, false
	}

	name, ok := raw["name"].(string)
	if !ok {
		return nil, false
	}
	createdAt, ok := raw["created_at"].(float64)
	if !ok {
		return nil, false
	}
	src, ok := raw["src"].(string)
	if !ok || !strings.HasPrefix(src, keys.Scheme) {
		return nil, false
	}
	contentType, ok := raw["content_type"].(string)
	if !ok {
		return nil, false
	}
	size, ok := raw["size"].(float64)
	if !ok {
		return nil, false
	}

	return &MetadataRecord{
		Name:        name,
		CreatedAt:   int64(createdAt),
		Src:         src,
		ContentType: contentType,
		Size:        int64(size),
	}, true
}

// Upload describes the two objects written by UploadBinary.
type Upload struct {
	BlobKey     string
	MetadataKey string
	Record      *MetadataRecord
}

// Replacement describes the outcome of ReplaceBinary.
type Replacement struct {
	NewBlobKey string
	Record     *MetadataRecord
}

// UploadBinary stores data as a blob+metadata pair under basePath.
//
// Two phases, not atomic: the blob goes to <basePath>blobs/<id> first,
// then the record to <basePath><id>. When the record write fails after a
// successful blob write the blob stays orphaned — the error kind is
// PartialFailure and the orphan is logged, never rolled back.
func (d *Drive) UploadBinary(ctx context.Context, basePath, name string, data []byte) (*Upload, error) {
	base, err := keys.Parse(basePath)
	if err != nil {
		return nil, err
	}
	base = base.AsDirectory()

	blobKey := base.String() + blobsSegment + newID()
	if err := d.store.Put(ctx, blobKey, data); err != nil {
		d.log.ErrorWith("blob write failed", err, map[string]any{"key": blobKey})
		return nil, err
	}

	record := &MetadataRecord{
		Name:        name,
		CreatedAt:   time.Now().UnixMicro(),
		Src:         blobKey,
		ContentType: DetectContentType(name, data),
		Size:        int64(len(data)),
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindValidation, "encoding metadata record", err)
	}

	metadataKey := base.String() + newID()
	if err := d.store.Put(ctx, metadataKey, encoded); err != nil {
		d.log.ErrorWith("metadata write failed, blob orphaned", err, map[string]any{
			"blob_key":     blobKey,
			"metadata_key": metadataKey,
		})
		return nil, errs.Wrap(errs.ErrKindPartialFailure, "metadata write failed after blob write", err)
	}

	d.files.Set(fileCacheKey(metadataKey), encoded)
	d.invalidateListing(base.String())

	return &Upload{BlobKey: blobKey, MetadataKey: metadataKey, Record: record}, nil
}

// ReplaceBinary swaps the content behind an existing metadata record.
//
// A fresh blob id is allocated under the same blobs/ base, the record is
// rewritten in place pointing at it, and the old blob is deleted best
// effort — a failed delete is logged and does not fail the replacement.
func (d *Drive) ReplaceBinary(ctx context.Context, metadataKey string, data []byte) (*Replacement, error) {
	existing, err := d.ReadFile(ctx, metadataKey, NoCache())
	if err != nil {
		return nil, err
	}

	record, ok := ParseMetadata(existing)
	if !ok {
		return nil, errs.Newf(errs.ErrKindValidation, "%s is not a metadata record", metadataKey)
	}

	oldBlobKey := record.Src
	newBlobKey := keys.ParentPath(oldBlobKey) + newID()

	if err := d.store.Put(ctx, newBlobKey, data); err != nil {
		d.log.ErrorWith("replacement blob write failed", err, map[string]any{"key": newBlobKey})
		return nil, err
	}

	record.Src = newBlobKey
	record.CreatedAt = time.Now().UnixMicro()
	record.ContentType = DetectContentType(record.Name, data)
	record.Size = int64(len(data))

	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindValidation, "encoding metadata record", err)
	}

	if err := d.store.Put(ctx, metadataKey, encoded); err != nil {
		d.log.ErrorWith("metadata rewrite failed, new blob orphaned", err, map[string]any{
			"blob_key":     newBlobKey,
			"metadata_key": metadataKey,
		})
		return nil, errs.Wrap(errs.ErrKindPartialFailure, "metadata rewrite failed after blob write", err)
	}

	d.files.Set(fileCacheKey(metadataKey), encoded)
	d.files.Delete(fileCacheKey(oldBlobKey))
	d.invalidateListing(keys.ParentPath(newBlobKey))

	if err := d.store.Delete(ctx, oldBlobKey); err != nil && !errs.IsNotFound(err) {
		d.log.WarnWith("old blob delete failed, object orphaned", map[string]any{
			"key":   oldBlobKey,
			"error": err.Error(),
		})
	}

	return &Replacement{NewBlobKey: newBlobKey, Record: record}, nil
}

// FindOrphanedBlobs scans the subtree under basePath and returns blob keys
// no metadata record points at. Reconciliation helper for the accepted
// partial-failure modes of UploadBinary and ReplaceBinary.
func (d *Drive) FindOrphanedBlobs(ctx context.Context, basePath string) ([]string, error) {
	base, err := keys.Parse(basePath)
	if err != nil {
		return nil, err
	}

	flat, err := d.store.List(ctx, base.AsDirectory().String(), store.ListOptions{})
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]bool)
	var blobKeys []string

	for _, key := range flat {
		if strings.Contains(key, keys.Separator+blobsSegment) {
			blobKeys = append(blobKeys, key)
			continue
		}

		content, err := d.store.Get(ctx, key)
		if err != nil {
			if errs.IsNotFound(err) {
				continue // deleted between list and probe
			}
			return nil, err
		}
		if record, ok := ParseMetadata(content); ok {
			referenced[record.Src] = true
		}
	}

	var orphans []string
	for _, key := range blobKeys {
		if !referenced[key] {
			orphans = append(orphans, key)
		}
	}
	return orphans, nil
}
