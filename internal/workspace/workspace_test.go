package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Lifecycle(t *testing.T) {
	mgr := NewManager(t.TempDir(), "run-1")
	require.NoError(t, mgr.Create())

	wsPath := mgr.GetPath()
	assert.Equal(t, "checkcode-run-1", filepath.Base(wsPath))
	assert.DirExists(t, wsPath)

	path, err := mgr.Stage("c_intro_block_1.c", []byte("int x;\n"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "int x;\n", string(data))

	require.NoError(t, mgr.Cleanup())
	assert.NoDirExists(t, wsPath)
	assert.Empty(t, mgr.GetPath())
	assert.NoError(t, mgr.Cleanup(), "second cleanup is a no-op")
}

func TestManager_RandomRunID(t *testing.T) {
	a := NewManager(t.TempDir(), "")
	b := NewManager(t.TempDir(), "")
	require.NoError(t, a.Create())
	require.NoError(t, b.Create())
	assert.NotEqual(t, filepath.Base(a.GetPath()), filepath.Base(b.GetPath()))
}

func TestManager_Kept(t *testing.T) {
	mgr := NewKeptManager(t.TempDir(), "keep")
	require.NoError(t, mgr.Create())
	require.NoError(t, mgr.Cleanup())
	assert.DirExists(t, mgr.GetPath())
}

func TestStage_Exclusive(t *testing.T) {
	mgr := NewManager(t.TempDir(), "x")
	require.NoError(t, mgr.Create())
	t.Cleanup(func() { _ = mgr.Cleanup() })

	_, err := mgr.Stage("a.c", []byte("1"))
	require.NoError(t, err)
	_, err = mgr.Stage("a.c", []byte("2"))
	assert.Error(t, err)

	for _, bad := range []string{"", "..", "../escape.c", `dir\x.c`} {
		_, err := mgr.Stage(bad, nil)
		assert.Error(t, err, bad)
	}
}

func TestStage_Concurrent(t *testing.T) {
	mgr := NewManager(t.TempDir(), "c")
	require.NoError(t, mgr.Create())
	t.Cleanup(func() { _ = mgr.Cleanup() })

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Stage(fmt.Sprintf("c_ch_block_%d.c", i), []byte("x"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestStage_BeforeCreate(t *testing.T) {
	_, err := NewManager(t.TempDir(), "n").Stage("a.c", nil)
	assert.Error(t, err)
}
