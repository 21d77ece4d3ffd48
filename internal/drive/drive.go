package drive

import (
	"context"

	"github.com/gillohner/pubky-tools/internal/cache"
	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/keys"
	"github.com/gillohner/pubky-tools/internal/logger"
	"github.com/gillohner/pubky-tools/internal/store"
)

// Config holds facade tuning.
type Config struct {
	// Cache configures the shared content/listing cache.
	Cache cache.Config

	// ListLimit caps a single store listing page. 0 uses the backend default.
	ListLimit int
}

// DefaultConfig returns production-ready facade settings.
func DefaultConfig() Config {
	return Config{Cache: cache.DefaultConfig()}
}

// Drive orchestrates file operations over a flat object store.
//
// It is stateless across calls except for the cache: reads and listings
// populate it, mutations invalidate the affected entries. Construct one
// Drive per store at startup and inject it — there is no package-level
// instance.
type Drive struct {
	store    store.Store
	log      *logger.Logger
	cfg      Config
	files    *cache.Cache[[]byte]
	listings *cache.Cache[[]FileNode]
}

// New creates a Drive over st. A nil log discards log output.
func New(st store.Store, log *logger.Logger, cfg Config) *Drive {
	if log == nil {
		log = logger.Nop()
	}
	return &Drive{
		store:    st,
		log:      log,
		cfg:      cfg,
		files:    cache.New[[]byte](cfg.Cache),
		listings: cache.New[[]FileNode](cfg.Cache),
	}
}

// StartCacheJanitor begins periodic sweeps of expired cache entries,
// stopping when ctx is cancelled. Optional; lookups self-evict anyway.
func (d *Drive) StartCacheJanitor(ctx context.Context) {
	d.files.StartJanitor(ctx)
	d.listings.StartJanitor(ctx)
}

// ReadOption adjusts a single read or list call.
type ReadOption func(*readOptions)

type readOptions struct {
	skipCache bool
}

// NoCache forces the call to bypass the cache and hit the store. The
// fetched result still refreshes the cache for later readers.
func NoCache() ReadOption {
	return func(o *readOptions) { o.skipCache = true }
}

func applyReadOptions(opts []ReadOption) readOptions {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// --- file operations ---

// CreateFile writes content at path and primes the cache: the new content
// is stored under the path and the parent's cached listing is dropped.
func (d *Drive) CreateFile(ctx context.Context, path string, content []byte) error {
	key, err := keys.Parse(path)
	if err != nil {
		return err
	}

	if err := d.store.Put(ctx, key.String(), content); err != nil {
		d.log.ErrorWith("create file failed", err, map[string]any{"key": path})
		return err
	}

	d.files.Set(fileCacheKey(key.String()), content)
	d.invalidateListing(keys.ParentPath(key.String()))
	return nil
}

// ReadFile returns the content stored at path. Zero-length content reads
// back as an empty non-nil slice; a missing object is errs.NotFound.
func (d *Drive) ReadFile(ctx context.Context, path string, opts ...ReadOption) ([]byte, error) {
	o := applyReadOptions(opts)

	key, err := keys.Parse(path)
	if err != nil {
		return nil, err
	}

	if !o.skipCache {
		if content, ok := d.files.Get(fileCacheKey(key.String())); ok {
			return content, nil
		}
	}

	content, err := d.store.Get(ctx, key.String())
	if err != nil {
		if !errs.IsNotFound(err) {
			d.log.ErrorWith("read file failed", err, map[string]any{"key": path})
		}
		return nil, err
	}
	if content == nil {
		content = []byte{}
	}

	d.files.Set(fileCacheKey(key.String()), content)
	return content, nil
}

// UpdateFile overwrites the content at path. The cached value is
// refreshed; the parent listing stays cached since directory membership
// did not change.
func (d *Drive) UpdateFile(ctx context.Context, path string, content []byte) error {
	key, err := keys.Parse(path)
	if err != nil {
		return err
	}

	if err := d.store.Put(ctx, key.String(), content); err != nil {
		d.log.ErrorWith("update file failed", err, map[string]any{"key": path})
		return err
	}

	d.files.Set(fileCacheKey(key.String()), content)
	return nil
}

// DeleteFile removes the object at path, evicting both the cached content
// and the parent's cached listing.
func (d *Drive) DeleteFile(ctx context.Context, path string) error {
	key, err := keys.Parse(path)
	if err != nil {
		return err
	}

	if err := d.store.Delete(ctx, key.String()); err != nil {
		if !errs.IsNotFound(err) {
			d.log.ErrorWith("delete file failed", err, map[string]any{"key": path})
		}
		return err
	}

	d.files.Delete(fileCacheKey(key.String()))
	d.invalidateListing(keys.ParentPath(key.String()))
	return nil
}

// ListDirectory returns the immediate children of dirPath. A trailing
// separator on dirPath is optional.
func (d *Drive) ListDirectory(ctx context.Context, dirPath string, opts ...ReadOption) ([]FileNode, error) {
	o := applyReadOptions(opts)

	key, err := keys.Parse(dirPath)
	if err != nil {
		return nil, err
	}
	prefix := key.AsDirectory().String()

	if !o.skipCache {
		if nodes, ok := d.listings.Get(listCacheKey(prefix)); ok {
			return nodes, nil
		}
	}

	flat, err := d.store.List(ctx, prefix, store.ListOptions{Limit: d.cfg.ListLimit})
	if err != nil {
		d.log.ErrorWith("list directory failed", err, map[string]any{"prefix": prefix})
		return nil, err
	}

	nodes := Reconstruct(prefix, flat)
	d.listings.Set(listCacheKey(prefix), nodes)
	return nodes, nil
}

// CreateDirectory makes dirPath appear in its parent's listing. The store
// has no directory primitive, so a zero-length placeholder object is
// written beneath the new directory.
func (d *Drive) CreateDirectory(ctx context.Context, dirPath string) error {
	key, err := keys.Parse(dirPath)
	if err != nil {
		return err
	}
	prefix := key.AsDirectory().String()

	if err := d.store.Put(ctx, prefix+dirPlaceholder, []byte{}); err != nil {
		d.log.ErrorWith("create directory failed", err, map[string]any{"prefix": prefix})
		return err
	}

	d.invalidateListing(keys.ParentPath(prefix))
	return nil
}

// CopyFile reads src (cache allowed) and creates dst. The two steps are
// not atomic; a failed create leaves src untouched.
func (d *Drive) CopyFile(ctx context.Context, src, dst string) error {
	content, err := d.ReadFile(ctx, src)
	if err != nil {
		return err
	}
	return d.CreateFile(ctx, dst, content)
}

// MoveFile copies src to dst and deletes src. A failed delete after a
// successful copy leaves both objects present and reports PartialFailure.
func (d *Drive) MoveFile(ctx context.Context, src, dst string) error {
	if err := d.CopyFile(ctx, src, dst); err != nil {
		return err
	}

	if err := d.DeleteFile(ctx, src); err != nil {
		d.log.ErrorWith("move: delete after copy failed, both objects remain", err, map[string]any{
			"src": src,
			"dst": dst,
		})
		return errs.Wrap(errs.ErrKindPartialFailure, "delete after copy failed", err)
	}
	return nil
}

// FileExists reports whether an object exists at path.
func (d *Drive) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := d.ReadFile(ctx, path)
	if err != nil {
		if errs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat returns the listing entry for path from its parent directory.
func (d *Drive) Stat(ctx context.Context, path string, opts ...ReadOption) (*FileNode, error) {
	key, err := keys.Parse(path)
	if err != nil {
		return nil, err
	}

	nodes, err := d.ListDirectory(ctx, key.Parent().String(), opts...)
	if err != nil {
		return nil, err
	}

	name := key.Name()
	for i := range nodes {
		if nodes[i].Name == name {
			// Copy: the slice belongs to the listings cache.
			node := nodes[i]
			return &node, nil
		}
	}
	return nil, errs.Newf(errs.ErrKindNotFound, "no entry named %s in %s", name, key.Parent())
}

// ClearCache drops cached entries matching pattern from both the content
// and listing caches. An empty pattern clears everything.
func (d *Drive) ClearCache(pattern string) {
	if pattern == "" {
		d.files.Clear()
		d.listings.Clear()
		return
	}
	d.files.InvalidatePattern(pattern)
	d.listings.InvalidatePattern(pattern)
}

// CacheStats reports occupancy of both caches.
type CacheStats struct {
	Files    cache.Stats `json:"files"`
	Listings cache.Stats `json:"listings"`
}

// Stats returns current cache occupancy.
func (d *Drive) Stats() CacheStats {
	return CacheStats{
		Files:    d.files.Stats(),
		Listings: d.listings.Stats(),
	}
}

// --- cache bookkeeping ---

func fileCacheKey(key string) string {
	return "file:" + key
}

func listCacheKey(prefix string) string {
	return "list:" + prefix
}

// invalidateListing drops the cached listing of prefix and of anything
// keyed deeper under it.
func (d *Drive) invalidateListing(prefix string) {
	d.listings.InvalidatePattern(listCacheKey(prefix) + "*")
}
