package chatsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	syncerrors "github.com/arbob/session-sync/internal/errors"
	"github.com/arbob/session-sync/internal/remote"
	"github.com/arbob/session-sync/internal/state"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory RemoteStore shared by simulated devices.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	commits int

	batchErr   error
	batchCalls int
	putCalls   []string
	putErrAt   string
	authErr    error
	authHook   func()
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Authenticate(context.Context) (remote.Account, error) {
	if m.authHook != nil {
		m.authHook()
	}

	if m.authErr != nil {
		return remote.Account{}, m.authErr
	}

	return remote.Account{Login: "octo"}, nil
}

func (m *memStore) EnsureRepository(context.Context) (bool, error) { return false, nil }

func (m *memStore) Location() (string, string) { return "octo", "sync" }

func (m *memStore) GetObject(_ context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[p]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", p, syncerrors.ErrNotFound)
	}

	return append([]byte(nil), data...), nil
}

func (m *memStore) PutObject(_ context.Context, p string, content []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putCalls = append(m.putCalls, p)

	if m.putErrAt == p {
		return "", fmt.Errorf("put %s: boom", p)
	}

	m.objects[p] = append([]byte(nil), content...)
	m.commits++

	return fmt.Sprintf("commit-%d", m.commits), nil
}

func (m *memStore) BatchCommit(_ context.Context, files []remote.File, deletions []string, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchCalls++

	if m.batchErr != nil {
		return "", m.batchErr
	}

	for _, f := range files {
		m.objects[f.Path] = append([]byte(nil), f.Content...)
	}

	for _, d := range deletions {
		delete(m.objects, d)
	}

	m.commits++

	return fmt.Sprintf("commit-%d", m.commits), nil
}

func (m *memStore) ListObjects(_ context.Context, dir string) ([]remote.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []remote.ObjectInfo

	for p, data := range m.objects {
		if path.Dir(p) == dir {
			out = append(out, remote.ObjectInfo{Path: p, Size: int64(len(data))})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out, nil
}

func (m *memStore) paths(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string

	for p := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}

	sort.Strings(out)

	return out
}

// manifest decrypts the stored manifest.
func (m *memStore) manifest(t *testing.T) *Manifest {
	t.Helper()

	raw, err := m.GetObject(context.Background(), ManifestPath)
	require.NoError(t, err)

	plain, err := DecryptString(string(raw), testPassphrase)
	require.NoError(t, err)

	man, err := DecodeManifest(plain)
	require.NoError(t, err)

	return man
}

// device is one simulated installation: its own session directory and
// state, sharing a remote store with other devices.
type device struct {
	syncer *Syncer
	source *FileSource
	state  *SyncState
	root   string
	clock  *testClock
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

func newDevice(t *testing.T, store RemoteStore, opts Options) *device {
	t.Helper()

	return newDeviceWithState(t, store, opts, state.NewMemory())
}

func newDeviceWithState(t *testing.T, store RemoteStore, opts Options, kv state.Store) *device {
	t.Helper()

	root := t.TempDir()

	src, err := NewFileSource(root, testLogger())
	require.NoError(t, err)

	st, err := NewSyncState(kv)
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now

	s, err := NewSyncer(store, src, st, testLogger(), opts)
	require.NoError(t, err)

	return &device{syncer: s, source: src, state: st, root: root, clock: clock}
}

func (d *device) setup(t *testing.T) {
	t.Helper()
	require.NoError(t, d.syncer.Setup(context.Background(), testPassphrase))
}

// writeSession writes a session file and sets its mtime to last.
func (d *device) writeSession(t *testing.T, ws, id string, format Format, content string, last time.Time) {
	t.Helper()

	dir := filepath.Join(d.root, ws, sessionsSubdir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	p := filepath.Join(dir, id+"."+string(format))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(p, last, last))
}

func (d *device) readSession(t *testing.T, ws, id string) string {
	t.Helper()

	data, err := d.source.ReadContent(context.Background(), ws, id)
	require.NoError(t, err)

	return string(data)
}

func jsonSession(id, title string, created int64, extra string) string {
	return fmt.Sprintf(`{"version":3,"sessionId":%q,"customTitle":%q,"creationDate":%d,"requests":[%s]}`, id, title, created, extra)
}
