package drive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gillohner/pubky-tools/internal/cache"
	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/store"
	"github.com/gillohner/pubky-tools/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore wraps the memory driver with call counting and fault injection.
type testStore struct {
	*memory.Driver

	getCalls  int
	listCalls int

	failPut       bool
	failDelete    bool
	failPutUnless string // when set, Put fails for keys not containing it
}

func (s *testStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.getCalls++
	return s.Driver.Get(ctx, key)
}

func (s *testStore) Put(ctx context.Context, key string, value []byte) error {
	if s.failPut {
		return errs.New(errs.ErrKindNetworkFailure, "injected put failure")
	}
	if s.failPutUnless != "" && !strings.Contains(key, s.failPutUnless) {
		return errs.New(errs.ErrKindNetworkFailure, "injected put failure")
	}
	return s.Driver.Put(ctx, key, value)
}

func (s *testStore) Delete(ctx context.Context, key string) error {
	if s.failDelete {
		return errs.New(errs.ErrKindNetworkFailure, "injected delete failure")
	}
	return s.Driver.Delete(ctx, key)
}

func (s *testStore) List(ctx context.Context, prefix string, opts store.ListOptions) ([]string, error) {
	s.listCalls++
	return s.Driver.List(ctx, prefix, opts)
}

func newTestDrive(t *testing.T) (*Drive, *testStore) {
	t.Helper()
	ts := &testStore{Driver: memory.New()}
	cfg := DefaultConfig()
	cfg.Cache = cache.Config{DefaultTTL: time.Minute, MaxEntries: 100}
	return New(ts, nil, cfg), ts
}

func TestCreateReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	tests := []struct {
		name    string
		content []byte
	}{
		{"regular content", []byte("hello world")},
		{"empty content", []byte{}},
		{"binary content", []byte{0x00, 0xFF, 0x10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "pubky://o/pub/files/" + strings.ReplaceAll(tt.name, " ", "-")

			require.NoError(t, d.CreateFile(ctx, path, tt.content))

			got, err := d.ReadFile(ctx, path, NoCache())
			require.NoError(t, err)
			require.NotNil(t, got, "empty content must read back as empty, not missing")
			assert.Equal(t, tt.content, got)
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	_, err := d.ReadFile(ctx, "pubky://o/pub/none.txt")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestReadUsesCache(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	path := "pubky://o/pub/a.txt"
	require.NoError(t, d.CreateFile(ctx, path, []byte("cached")))

	// CreateFile primed the cache; no store read needed.
	got, err := d.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), got)
	assert.Equal(t, 0, ts.getCalls)

	// NoCache always goes to the store.
	_, err = d.ReadFile(ctx, path, NoCache())
	require.NoError(t, err)
	assert.Equal(t, 1, ts.getCalls)
}

func TestReadPopulatesCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	path := "pubky://o/pub/a.txt"
	require.NoError(t, ts.Driver.Put(ctx, path, []byte("direct")))

	_, err := d.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.getCalls)

	_, err = d.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.getCalls, "second read must hit the cache")
}

func TestUpdateFileKeepsParentListingCached(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	path := "pubky://o/pub/docs/a.txt"
	require.NoError(t, d.CreateFile(ctx, path, []byte("v1")))

	_, err := d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)
	listCalls := ts.listCalls

	require.NoError(t, d.UpdateFile(ctx, path, []byte("v2")))

	// Membership did not change; the cached listing stays.
	_, err = d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)
	assert.Equal(t, listCalls, ts.listCalls)

	// The cached content did change.
	got, err := d.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestDeleteCascadesInvalidation(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	path := "pubky://o/pub/docs/a.txt"
	require.NoError(t, d.CreateFile(ctx, path, []byte("x")))

	// Prime both caches.
	_, err := d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)
	_, err = d.ReadFile(ctx, path)
	require.NoError(t, err)

	listCalls := ts.listCalls
	getCalls := ts.getCalls

	require.NoError(t, d.DeleteFile(ctx, path))

	// The parent listing must be re-queried.
	nodes, err := d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)
	assert.Equal(t, listCalls+1, ts.listCalls)
	assert.Empty(t, nodes)

	// The cached content is gone too.
	_, err = d.ReadFile(ctx, path)
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, getCalls+1, ts.getCalls)
}

func TestCreateInvalidatesParentListing(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	nodes, err := d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)
	assert.Empty(t, nodes)
	listCalls := ts.listCalls

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/docs/new.txt", []byte("x")))

	nodes, err = d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)
	assert.Equal(t, listCalls+1, ts.listCalls)
	require.Len(t, nodes, 1)
	assert.Equal(t, "new.txt", nodes[0].Name)
}

func TestListDirectoryNormalizesTrailingSeparator(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/docs/a.txt", []byte("x")))

	withSlash, err := d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)
	listCalls := ts.listCalls

	withoutSlash, err := d.ListDirectory(ctx, "pubky://o/pub/docs")
	require.NoError(t, err)

	assert.Equal(t, withSlash, withoutSlash)
	assert.Equal(t, listCalls, ts.listCalls, "both spellings share one cache entry")
}

func TestCreateDirectory(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	require.NoError(t, d.CreateDirectory(ctx, "pubky://o/pub/projects/alpha"))

	nodes, err := d.ListDirectory(ctx, "pubky://o/pub/projects/")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "alpha", nodes[0].Name)
	assert.True(t, nodes[0].IsDirectory)

	// The placeholder object stays hidden inside the directory itself.
	inside, err := d.ListDirectory(ctx, "pubky://o/pub/projects/alpha/")
	require.NoError(t, err)
	assert.Empty(t, inside)
}

func TestCopyFile(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/a.txt", []byte("payload")))
	require.NoError(t, d.CopyFile(ctx, "pubky://o/pub/a.txt", "pubky://o/pub/b.txt"))

	src, err := d.ReadFile(ctx, "pubky://o/pub/a.txt", NoCache())
	require.NoError(t, err)
	dst, err := d.ReadFile(ctx, "pubky://o/pub/b.txt", NoCache())
	require.NoError(t, err)
	assert.Equal(t, src, dst)
}

func TestMoveFile(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/a.txt", []byte("payload")))
	require.NoError(t, d.MoveFile(ctx, "pubky://o/pub/a.txt", "pubky://o/pub/moved.txt"))

	_, err := d.ReadFile(ctx, "pubky://o/pub/a.txt", NoCache())
	assert.True(t, errs.IsNotFound(err))

	got, err := d.ReadFile(ctx, "pubky://o/pub/moved.txt", NoCache())
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestMoveFileDeleteFailureIsPartial(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/a.txt", []byte("payload")))

	ts.failDelete = true
	err := d.MoveFile(ctx, "pubky://o/pub/a.txt", "pubky://o/pub/b.txt")
	require.Error(t, err)
	assert.True(t, errs.IsPartialFailure(err))
	ts.failDelete = false

	// Both objects remain; nothing reconciles automatically.
	for _, path := range []string{"pubky://o/pub/a.txt", "pubky://o/pub/b.txt"} {
		_, err := d.ReadFile(ctx, path, NoCache())
		assert.NoError(t, err, path)
	}
}

func TestFileExists(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/a.txt", []byte("x")))

	exists, err := d.FileExists(ctx, "pubky://o/pub/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = d.FileExists(ctx, "pubky://o/pub/none.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/docs/a.txt", []byte("x")))

	node, err := d.Stat(ctx, "pubky://o/pub/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", node.Name)
	assert.False(t, node.IsDirectory)

	_, err = d.Stat(ctx, "pubky://o/pub/docs/nope.txt")
	assert.True(t, errs.IsNotFound(err))
}

func TestStatResultIsDetachedFromCache(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/docs/a.txt", []byte("x")))

	node, err := d.Stat(ctx, "pubky://o/pub/docs/a.txt")
	require.NoError(t, err)
	node.Name = "mangled"

	nodes, err := d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "a.txt", nodes[0].Name)
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	require.NoError(t, d.CreateFile(ctx, "pubky://o/pub/docs/a.txt", []byte("x")))
	_, err := d.ListDirectory(ctx, "pubky://o/pub/docs/")
	require.NoError(t, err)

	t.Run("pattern", func(t *testing.T) {
		listCalls := ts.listCalls
		d.ClearCache("list:pubky://o/pub/docs/*")

		_, err := d.ListDirectory(ctx, "pubky://o/pub/docs/")
		require.NoError(t, err)
		assert.Equal(t, listCalls+1, ts.listCalls)

		// Content cache untouched by the list-only pattern.
		getCalls := ts.getCalls
		_, err = d.ReadFile(ctx, "pubky://o/pub/docs/a.txt")
		require.NoError(t, err)
		assert.Equal(t, getCalls, ts.getCalls)
	})

	t.Run("everything", func(t *testing.T) {
		d.ClearCache("")
		stats := d.Stats()
		assert.Equal(t, 0, stats.Files.TotalEntries)
		assert.Equal(t, 0, stats.Listings.TotalEntries)
	})
}

func TestCreateFileFailureLeavesCacheCold(t *testing.T) {
	ctx := context.Background()
	d, ts := newTestDrive(t)

	ts.failPut = true
	err := d.CreateFile(ctx, "pubky://o/pub/a.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, errs.IsNetworkFailure(err))
	ts.failPut = false

	_, err = d.ReadFile(ctx, "pubky://o/pub/a.txt")
	assert.True(t, errs.IsNotFound(err), "a failed create must not populate the cache")
}

func TestInvalidPathRejected(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDrive(t)

	err := d.CreateFile(ctx, "ftp://o/pub/a.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}
