package standalone_storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap-incubator/tinydoc/kv/config"
	"github.com/pingcap-incubator/tinydoc/kv/storage"
	"github.com/pingcap-incubator/tinydoc/kv/util/engine_util"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedStorage(t *testing.T) (*StandAloneStorage, *config.Config) {
	conf := config.NewTestConfig(t.TempDir())
	s := NewStandAloneStorage(conf)
	require.Nil(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s, conf
}

func TestReadWrite(t *testing.T) {
	s, _ := startedStorage(t)
	cf := engine_util.CfOverlay

	txn, err := s.Begin(true)
	require.Nil(t, err)
	require.Nil(t, txn.SetCF(cf, []byte("a"), []byte("x")))
	require.Nil(t, txn.SetCF(cf, []byte("b"), []byte("y")))
	require.Nil(t, txn.Commit())

	r, err := s.Begin(false)
	require.Nil(t, err)
	defer r.Discard()
	ret, err := r.GetCF(cf, []byte("a"))
	require.Nil(t, err)
	assert.Equal(t, []byte("x"), ret)

	ret, err = r.GetCF(cf, []byte("missing"))
	require.Nil(t, err)
	assert.Nil(t, ret)

	err = r.SetCF(cf, []byte("c"), []byte("z"))
	assert.Equal(t, storage.ErrReadOnlyTxn, errors.Cause(err))
}

func TestIterCF(t *testing.T) {
	s, _ := startedStorage(t)
	cf := engine_util.CfOverlayGroup

	txn, err := s.Begin(true)
	require.Nil(t, err)
	require.Nil(t, txn.SetCF(cf, []byte("a"), []byte("x")))
	require.Nil(t, txn.SetCF(cf, []byte("b"), []byte("y")))
	require.Nil(t, txn.SetCF(engine_util.CfOverlay, []byte("c"), []byte("other cf")))
	require.Nil(t, txn.Commit())

	r, err := s.Begin(false)
	require.Nil(t, err)
	defer r.Discard()
	iter := r.IterCF(cf)
	iter.Seek([]byte("a"))
	item := iter.Item()
	assert.Equal(t, []byte("a"), item.Key())
	val, _ := item.Value()
	assert.Equal(t, []byte("x"), val)

	iter.Next()
	item = iter.Item()
	assert.Equal(t, []byte("b"), item.Key())
	val, _ = item.Value()
	assert.Equal(t, []byte("y"), val)
	iter.Next()
	assert.False(t, iter.Valid())
	iter.Close()
}

func TestDiscardDropsWrites(t *testing.T) {
	s, _ := startedStorage(t)
	txn, err := s.Begin(true)
	require.Nil(t, err)
	require.Nil(t, txn.SetCF(engine_util.CfOverlay, []byte("a"), []byte("x")))
	txn.Discard()
	assert.Equal(t, storage.ErrTxnClosed, txn.Commit())

	r, err := s.Begin(false)
	require.Nil(t, err)
	defer r.Discard()
	val, err := r.GetCF(engine_util.CfOverlay, []byte("a"))
	require.Nil(t, err)
	assert.Nil(t, val)
}

func TestConflictAbort(t *testing.T) {
	s, _ := startedStorage(t)
	cf := engine_util.CfOverlay

	first, err := s.Begin(true)
	require.Nil(t, err)
	second, err := s.Begin(true)
	require.Nil(t, err)

	_, err = first.GetCF(cf, []byte("k"))
	require.Nil(t, err)
	require.Nil(t, first.SetCF(cf, []byte("k"), []byte("1")))
	_, err = second.GetCF(cf, []byte("k"))
	require.Nil(t, err)
	require.Nil(t, second.SetCF(cf, []byte("k"), []byte("2")))

	require.Nil(t, first.Commit())
	err = second.Commit()
	require.NotNil(t, err)
	aborted, ok := err.(*storage.ErrTxnAborted)
	require.True(t, ok)
	assert.True(t, aborted.Retryable)
}

func TestPersistsAcrossRestart(t *testing.T) {
	s, conf := startedStorage(t)
	txn, err := s.Begin(true)
	require.Nil(t, err)
	require.Nil(t, txn.SetCF(engine_util.CfOverlay, []byte("a"), []byte("x")))
	require.Nil(t, txn.Commit())
	require.Nil(t, s.Stop())

	_, err = s.Begin(false)
	assert.Equal(t, storage.ErrNotStarted, err)

	reopened := NewStandAloneStorage(conf)
	require.Nil(t, reopened.Start())
	defer reopened.Stop()
	r, err := reopened.Begin(false)
	require.Nil(t, err)
	defer r.Discard()
	val, err := r.GetCF(engine_util.CfOverlay, []byte("a"))
	require.Nil(t, err)
	assert.Equal(t, []byte("x"), val)
}

func TestUnavailable(t *testing.T) {
	// A regular file where the directory should be.
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.Nil(t, os.WriteFile(file, []byte{}, 0644))
	conf := config.NewTestConfig(file)
	assert.False(t, IsAvailable(conf))

	s := NewStandAloneStorage(conf)
	err := s.Start()
	require.NotNil(t, err)
	_, ok := err.(*storage.ErrBackendUnavailable)
	assert.True(t, ok)

	conf = config.NewTestConfig(t.TempDir())
	conf.MinFreeDisk = "1000000TB"
	err = Probe(conf)
	require.NotNil(t, err)
	_, ok = err.(*storage.ErrBackendUnavailable)
	assert.True(t, ok)

	assert.True(t, IsAvailable(config.NewTestConfig(t.TempDir())))
}

func TestDirectoryLocked(t *testing.T) {
	_, conf := startedStorage(t)
	second := NewStandAloneStorage(conf)
	err := second.Start()
	require.NotNil(t, err)
	_, ok := err.(*storage.ErrBackendUnavailable)
	assert.True(t, ok)
}
