package council

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

const soloCatalog = `
[[councils]]
id = "solo"
name = "Solo Council"
is_active = true
decision_authority = 1.0
prompt = "You are the Solo Council."

[[modules]]
id = "strategic-fit"
owner = "solo"
`

func okReasoner(t *testing.T) reasonerFunc {
	return func(context.Context, string) (string, error) {
		return perspectiveJSON(t, "ok", 0.5, "Act"), nil
	}
}

func TestSetCatalogSwapsFanOutRouting(t *testing.T) {
	s := newTestService(t, okReasoner(t))
	assert.Equal(t, []string{"strategic-intelligence", "risk-governance"},
		s.FanOut(context.Background(), "strategic-fit", nil, "").Councils)

	solo, err := ParseCatalog([]byte(soloCatalog))
	require.NoError(t, err)
	s.SetCatalog(solo)

	got := s.FanOut(context.Background(), "strategic-fit", nil, "")
	assert.Equal(t, []string{"solo"}, got.Councils)
	require.Len(t, got.Perspectives, 1)
	assert.Equal(t, "solo", got.Perspectives[0].CouncilID)

	s.SetCatalog(nil)
	assert.Same(t, solo, s.Catalog(), "nil catalog is ignored")
}

func TestWatchCatalogReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "councils.toml")
	data, err := os.ReadFile("catalog.toml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	initial, err := LoadCatalog(path)
	require.NoError(t, err)
	s, err := NewService(initial, okReasoner(t), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	reloads := make(chan error, 16)
	w, err := WatchCatalog(context.Background(), path, s,
		WithWatchLogger(zaptest.NewLogger(t)),
		WithReloadHook(func(err error) { reloads <- err }))
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(soloCatalog), 0o600))
	assert.Eventually(t, func() bool {
		_, ok := s.Catalog().Council("solo")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("[[councils]\n"), 0o600))
	deadline := time.After(5 * time.Second)
	for failed := false; !failed; {
		select {
		case err := <-reloads:
			failed = err != nil
			if failed {
				assert.ErrorIs(t, err, ErrInvalidCatalog)
			}
		case <-deadline:
			t.Fatal("no failed reload after malformed write")
		}
	}
	_, ok := s.Catalog().Council("solo")
	assert.True(t, ok, "malformed file keeps the previous catalog")
}

func TestWatchCatalogIgnoresSiblingFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "councils.toml")
	require.NoError(t, os.WriteFile(path, []byte(soloCatalog), 0o600))

	s := newTestService(t, okReasoner(t))
	before := s.Catalog()
	reloads := make(chan error, 16)
	w, err := WatchCatalog(context.Background(), path, s,
		WithReloadHook(func(err error) { reloads <- err }))
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	select {
	case err := <-reloads:
		t.Fatalf("unexpected reload: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Same(t, before, s.Catalog())
}

func TestWatchCatalogStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "councils.toml")
	require.NoError(t, os.WriteFile(path, []byte(soloCatalog), 0o600))
	s := newTestService(t, okReasoner(t))

	ctx, cancel := context.WithCancel(context.Background())
	w, err := WatchCatalog(ctx, path, s)
	require.NoError(t, err)
	cancel()
	w.Stop()
	w.Stop()
}

func TestWatchCatalogRejectsBadArguments(t *testing.T) {
	s := newTestService(t, okReasoner(t))

	_, err := WatchCatalog(context.Background(), "", s)
	assert.ErrorIs(t, err, ErrWatcherFailed)

	_, err = WatchCatalog(context.Background(), "councils.toml", nil)
	assert.ErrorIs(t, err, ErrWatcherFailed)

	_, err = WatchCatalog(context.Background(), filepath.Join(t.TempDir(), "missing", "councils.toml"), s)
	assert.ErrorIs(t, err, ErrWatcherFailed)
}
