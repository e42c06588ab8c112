//go:build unix

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_AcquireLoadLock_Times_Out_When_Held(t *testing.T) {
	t.Parallel()

	db := filepath.Join(t.TempDir(), "tunes.sqlite")

	held, err := acquireLoadLock(db, time.Second)
	require.NoError(t, err)

	_, err = acquireLoadLock(db, 30*time.Millisecond)
	require.ErrorIs(t, err, errLockTimeout)

	held.release()
	again, err := acquireLoadLock(db, time.Second)
	require.NoError(t, err)
	again.release()
	again.release()
}

func Test_AcquireLoadLock_Creates_Missing_Directory(t *testing.T) {
	t.Parallel()

	l, err := acquireLoadLock(filepath.Join(t.TempDir(), "no", "such", "tunes.sqlite"), time.Millisecond)
	require.NoError(t, err)
	l.release()
}

func Test_AcquireLoadLock_Fails_When_Parent_Is_File(t *testing.T) {
	t.Parallel()

	parent := filepath.Join(t.TempDir(), "file")
	writeFile(t, parent, "x")

	_, err := acquireLoadLock(filepath.Join(parent, "tunes.sqlite"), time.Millisecond)
	require.ErrorIs(t, err, errLockFileOpen)
}
