package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debsources/debsources/internal/archerr"
	"github.com/debsources/debsources/internal/archive"
	"github.com/debsources/debsources/internal/auth"
	"github.com/debsources/debsources/internal/checksum"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/registry"
	"github.com/debsources/debsources/internal/storage/local"
	"github.com/debsources/debsources/internal/version"
	"github.com/debsources/debsources/pkg/protocol"
)

const (
	mainC      = "#include <stdio.h>\n\nint main(void)\n{\n\tputs(\"hello\");\n\treturn 0;\n}\n"
	testSecret = "test-secret"
)

func TestMain(m *testing.M) {
	logging.InitNop()
	os.Exit(m.Run())
}

type testEnv struct {
	handler   http.Handler
	root      string
	cacheDir  string
	reg       *registry.Memory
	checksums *checksum.MemoryStore
	pinger    *fakePinger
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

type downRegistry struct{}

func (downRegistry) Versions(context.Context, string) ([]registry.Version, error) {
	return nil, fmt.Errorf("query versions: %w: dial tcp 10.0.0.5:5432: connection refused", archerr.ErrRegistryUnavailable)
}

func (downRegistry) Exists(context.Context, string) (bool, error) {
	return false, archerr.ErrRegistryUnavailable
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chmod(path, 0o644))
}

func newEnv(t *testing.T, reg registry.Registry) *testEnv {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "sources")
	cacheDir := filepath.Join(base, "cache")
	v4 := filepath.Join(root, "acl", "2.2.49-4")

	writeFile(t, filepath.Join(root, "acl", "2.2.49-2", "doc", "COPYING"), "GPL\n")
	writeFile(t, filepath.Join(v4, ".pc", "applied"), "01-fix.patch\n")
	writeFile(t, filepath.Join(v4, "doc", "COPYING"), "GPL\n")
	writeFile(t, filepath.Join(v4, "src", "main.c"), mainC)
	writeFile(t, filepath.Join(v4, "index.html"), "<script>alert(1)</script>\n")
	writeFile(t, filepath.Join(base, "outside", "secret"), "top secret\n")
	writeFile(t, filepath.Join(cacheDir, "last-update"), "Sat, 17 Oct 2026 06:52:01 +0000\n")
	if err := os.Symlink(filepath.Join(base, "outside", "secret"), filepath.Join(v4, "doc", "secret")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	env := &testEnv{
		root:      root,
		cacheDir:  cacheDir,
		checksums: &checksum.MemoryStore{},
		pinger:    &fakePinger{},
	}
	if reg == nil {
		env.reg = registry.NewMemory(map[string][]registry.Version{
			"acl": {
				{Number: "2.2.49-4", VCS: &registry.VCS{Type: "git", Browser: "https://salsa.debian.org/debian/acl"}},
				{Number: "2.2.49-2"},
			},
			"libc++": {{Number: "1.0"}},
		})
		reg = env.reg
	}

	resolver, err := archive.NewResolver(root, reg, version.Debian{})
	require.NoError(t, err)
	t.Cleanup(func() { resolver.Close() })

	content, err := local.New(local.Config{RootPath: root})
	require.NoError(t, err)
	t.Cleanup(func() { content.Close() })

	idx := checksum.NewIndex(env.checksums, checksum.WithCache(time.Minute, 100))
	srv := NewServer(Deps{
		Resolver:  resolver,
		Lister:    archive.NewLister(nil),
		Inspector: archive.NewInspector("/data", 0),
		Checksums: idx,
		Content:   content,
		Auth:      auth.New(testSecret),
		Pinger:    env.pinger,
		Caches:    map[string]Purger{"checksums": idx},
		PTSPrefix: "https://tracker.debian.org/pkg/",
		CacheDir:  cacheDir,
		RawPrefix: "/data",
	})
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return e.do(t, http.MethodGet, target, nil, nil)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPing(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.get(t, "/api/ping/")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.PingResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Sat, 17 Oct 2026 06:52:01 +0000", resp.LastUpdate)

	env.pinger.err = archerr.ErrRegistryUnavailable
	rec = env.get(t, "/api/ping/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "db error", decode[protocol.PingResponse](t, rec).Status)
}

func TestPackageVersions(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.get(t, "/api/src/acl/")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.PackageResponse](t, rec)
	assert.Equal(t, "package", resp.Type)
	require.Len(t, resp.Versions, 2)
	assert.Equal(t, "2.2.49-2", resp.Versions[0].Version)
	assert.Equal(t, "2.2.49-4", resp.Versions[1].Version)
	require.NotNil(t, resp.Versions[1].VCS)
	assert.Equal(t, "git", resp.Versions[1].VCS.Type)
	assert.Equal(t, "https://tracker.debian.org/pkg/acl", resp.PTSLink)

	rec = env.get(t, "/api/src/libc++/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://tracker.debian.org/pkg/libc%2B%2B", decode[protocol.PackageResponse](t, rec).PTSLink)

	rec = env.get(t, "/api/src/nope/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[protocol.ErrorResponse](t, rec).Code)
}

func TestLatestRedirects(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.get(t, "/api/src/acl/latest/doc/?x=1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/src/acl/2.2.49-4/doc/?x=1", rec.Header().Get("Location"))

	rec = env.get(t, "/data/acl/latest/src/main.c")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/data/acl/2.2.49-4/src/main.c", rec.Header().Get("Location"))
}

func TestDirectoryListing(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.get(t, "/api/src/acl/2.2.49-4/")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.DirectoryResponse](t, rec)
	assert.Equal(t, "package", resp.Type)
	assert.Equal(t, "", resp.Path)
	assert.Equal(t, []protocol.DirEntry{
		{Name: "doc", Type: "directory"},
		{Name: "index.html", Type: "file"},
		{Name: "src", Type: "directory"},
	}, resp.Content)
	require.NotNil(t, resp.VCS)
	assert.Equal(t, "https://salsa.debian.org/debian/acl", resp.VCS.Browser)

	rec = env.get(t, "/api/src/acl/2.2.49-4/doc/")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[protocol.DirectoryResponse](t, rec)
	assert.Equal(t, "directory", resp.Type)
	assert.Equal(t, "doc", resp.Path)
	assert.Equal(t, []protocol.DirEntry{
		{Name: "COPYING", Type: "file"},
		{Name: "secret", Type: "file"},
	}, resp.Content)
}

func TestFileMetadata(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.get(t, "/api/src/acl/2.2.49-4/src/main.c")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.FileResponse](t, rec)
	assert.Equal(t, "file", resp.Type)
	assert.Equal(t, "src/main.c", resp.Path)
	assert.Equal(t, "main.c", resp.Name)
	assert.Equal(t, "text/x-csrc", resp.MimeType)
	assert.True(t, resp.IsText)
	assert.Equal(t, int64(len(mainC)), resp.Size)
	assert.Equal(t, "rw-r--r--", resp.Permissions)
	assert.Equal(t, "/data/acl/2.2.49-4/src/main.c", resp.RawURL)
}

func TestSourceErrors(t *testing.T) {
	env := newEnv(t, nil)

	tests := []struct {
		target string
		code   int
	}{
		{"/api/src/acl/9.9/", http.StatusNotFound},
		{"/api/src/nope/1.0/", http.StatusNotFound},
		{"/api/src/acl/2.2.49-4/missing.c", http.StatusNotFound},
		{"/api/src/acl/2.2.49-4/doc/secret", http.StatusForbidden},
		{"/api/src/acl/2.2.49-4/doc/secret/", http.StatusForbidden},
		{"/api/src/acl/2.2.49-4/src/a%00b", http.StatusBadRequest},
		{"/api/src/", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := env.get(t, tt.target)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), env.root)
		})
	}
}

func TestRegistryUnavailable(t *testing.T) {
	env := newEnv(t, downRegistry{})

	rec := env.get(t, "/api/src/acl/2.2.49-4/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[protocol.ErrorResponse](t, rec)
	assert.Equal(t, "registry unavailable", resp.Error)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestChecksumLookup(t *testing.T) {
	env := newEnv(t, nil)
	key := digest.FromString("GPL\n").Encoded()
	env.checksums.Add(key,
		checksum.Occurrence{Package: "acl", Version: "2.2.49-4", Path: "doc/COPYING"},
		checksum.Occurrence{Package: "acl", Version: "2.2.49-2", Path: "doc/COPYING"},
		checksum.Occurrence{Package: "libfoo", Version: "1.0", Path: "COPYING"},
	)

	rec := env.get(t, "/api/sha256/"+key)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[protocol.ChecksumResponse](t, rec)
	assert.Equal(t, key, resp.SHA256)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, protocol.Occurrence{Package: "acl", Version: "2.2.49-2", Path: "doc/COPYING"}, resp.Results[0])

	rec = env.get(t, "/api/sha256/"+key+"?package=libfoo")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[protocol.ChecksumResponse](t, rec)
	assert.Equal(t, 1, resp.Count)

	rec = env.get(t, "/api/sha256/"+digest.FromString("nothing").Encoded())
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[protocol.ChecksumResponse](t, rec)
	assert.Zero(t, resp.Count)
	assert.NotNil(t, resp.Results)

	for _, bad := range []string{"deadbeef", strings.ToUpper(key), strings.Repeat("z", 64)} {
		rec = env.get(t, "/api/sha256/"+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestRawContent(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.get(t, "/data/acl/2.2.49-4/src/main.c")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mainC, rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = env.get(t, "/data/acl/2.2.49-4/index.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodGet, "/data/acl/2.2.49-4/src/main.c", nil, map[string]string{"Range": "bytes=0-7"})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "#include", rec.Body.String())
	assert.Equal(t, fmt.Sprintf("bytes 0-7/%d", len(mainC)), rec.Header().Get("Content-Range"))

	rec = env.do(t, http.MethodGet, "/data/acl/2.2.49-4/src/main.c", nil, map[string]string{"Range": "bytes=9999-"})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)

	rec = env.get(t, "/data/acl/2.2.49-4/doc/secret")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "top secret")

	rec = env.get(t, "/data/acl/2.2.49-4/doc")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.get(t, "/data/acl")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGzipLargeListings(t *testing.T) {
	env := newEnv(t, nil)
	dir := filepath.Join(env.root, "acl", "2.2.49-4", "many")
	for i := 0; i < 200; i++ {
		writeFile(t, filepath.Join(dir, fmt.Sprintf("file-%03d.c", i)), "x")
	}

	rec := env.do(t, http.MethodGet, "/api/src/acl/2.2.49-4/many/", nil, map[string]string{"Accept-Encoding": "gzip"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestAdminEndpoints(t *testing.T) {
	env := newEnv(t, nil)
	token, _, err := auth.New(testSecret).IssueToken("ops", time.Hour)
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + token}

	rec := env.do(t, http.MethodPost, "/api/admin/cache/purge", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	key := digest.FromString("GPL\n").Encoded()
	env.get(t, "/api/sha256/"+key)

	rec = env.do(t, http.MethodPost, "/api/admin/cache/purge", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"checksums": 1}, decode[protocol.PurgeResponse](t, rec).Purged)

	rec = env.do(t, http.MethodPut, "/api/admin/loglevel", strings.NewReader(`{"level":"debug"}`), bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "debug", decode[protocol.LogLevelResponse](t, rec).Level)

	rec = env.do(t, http.MethodPut, "/api/admin/loglevel", strings.NewReader(`{"level":"loud"}`), bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/loglevel", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "debug", decode[protocol.LogLevelResponse](t, rec).Level)
	require.NoError(t, logging.SetLevel("info"))
}

func TestAdminDisabledWithoutTokenSource(t *testing.T) {
	srv := NewServer(Deps{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/cache/purge", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// slowRegistry blocks every lookup until release is closed.
type slowRegistry struct {
	*registry.Memory
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (s *slowRegistry) Versions(ctx context.Context, pkg string) ([]registry.Version, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Memory.Versions(ctx, pkg)
}

func TestCancelledRequestDoesNotFailSharedLookup(t *testing.T) {
	slow := &slowRegistry{
		Memory: registry.NewMemory(map[string][]registry.Version{
			"acl": {{Number: "2.2.49-4"}, {Number: "2.2.49-2"}},
		}),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	env := newEnv(t, registry.NewCached(slow, time.Minute, 10))

	serve := func(ctx context.Context) <-chan *httptest.ResponseRecorder {
		done := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			req := httptest.NewRequest(http.MethodGet, "/api/src/acl/2.2.49-4/doc/", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			done <- rec
		}()
		return done
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	a := serve(ctxA)
	<-slow.started
	b := serve(context.Background())

	cancelA()
	recA := <-a
	assert.Empty(t, recA.Body.String())

	close(slow.release)
	var recB *httptest.ResponseRecorder
	select {
	case recB = <-b:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent request did not complete")
	}
	require.Equal(t, http.StatusOK, recB.Code, recB.Body.String())
	resp := decode[protocol.DirectoryResponse](t, recB)
	assert.Equal(t, []protocol.DirEntry{
		{Name: "COPYING", Type: "file"},
		{Name: "secret", Type: "file"},
	}, resp.Content)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{archerr.ErrUnknownPackage, http.StatusNotFound},
		{archerr.ErrUnknownVersion, http.StatusNotFound},
		{archerr.ErrNotFound, http.StatusNotFound},
		{archerr.ErrSymlinkDenied, http.StatusForbidden},
		{archerr.ErrInvalidChecksum, http.StatusBadRequest},
		{archerr.ErrInvalidAddress, http.StatusBadRequest},
		{archerr.ErrRegistryUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, statusFor(archerr.ClassOf(tt.err)), tt.err.Error())
	}
}

func TestParseRangeHeader(t *testing.T) {
	const size = 100
	tests := []struct {
		header         string
		offset, length int64
		hasRange       bool
		wantErr        bool
	}{
		{"", 0, size, false, false},
		{"bytes=0-9", 0, 10, true, false},
		{"bytes=90-", 90, 10, true, false},
		{"bytes=90-500", 90, 10, true, false},
		{"bytes=-20", 80, 20, true, false},
		{"bytes=-500", 0, size, true, false},
		{"bytes=100-", 0, 0, false, true},
		{"bytes=-0", 0, 0, false, true},
		{"bytes=9-3", 0, size, false, false},
		{"bytes=0-1,5-6", 0, size, false, false},
		{"items=0-9", 0, size, false, false},
		{"bytes=-", 0, size, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			offset, length, hasRange, err := parseRangeHeader(tt.header, size)
			if tt.wantErr {
				assert.ErrorIs(t, err, errRangeNotSatisfiable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.offset, offset)
			assert.Equal(t, tt.length, length)
			assert.Equal(t, tt.hasRange, hasRange)
		})
	}
}
