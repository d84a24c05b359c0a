package db

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, chunkSize int) *Database {
	t.Helper()
	d, err := OpenMemory(Options{ChunkSize: chunkSize})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestMallocReusesExactSizeClass(t *testing.T) {
	d := newTestDB(t, 0)

	a, err := d.Malloc(32)
	require.NoError(t, err)
	require.NoError(t, d.Free(a))

	big, err := d.Malloc(64)
	require.NoError(t, err)
	require.NotEqual(t, a, big, "a block of another size class must not be reused")

	b, err := d.Malloc(30) // rounds to the same class as 32
	require.NoError(t, err)
	require.Equal(t, a, b)

	st := d.Stats()
	require.EqualValues(t, 3, st.Mallocs)
	require.EqualValues(t, 1, st.Frees)
	require.EqualValues(t, 1, st.Reused)
}

func TestMallocZeroesReusedBlock(t *testing.T) {
	d := newTestDB(t, 0)

	a, err := d.Malloc(16)
	require.NoError(t, err)
	require.NoError(t, d.PutInt(a+4, -7))
	require.NoError(t, d.PutInt(a+12, 99))
	require.NoError(t, d.Free(a))

	b, err := d.Malloc(16)
	require.NoError(t, err)
	require.Equal(t, a, b)
	for _, field := range []Offset{b, b + 4, b + 8, b + 12} {
		v, err := d.GetInt(field)
		require.NoError(t, err)
		require.Zero(t, v, "field %v", field)
	}
}

func TestResolveRejectsFreedAndReusedBlocks(t *testing.T) {
	d := newTestDB(t, 0)

	a, err := d.Malloc(24)
	require.NoError(t, err)
	ref, err := d.RefOf(a)
	require.NoError(t, err)

	got, err := d.Resolve(ref)
	require.NoError(t, err)
	require.Equal(t, a, got)

	require.NoError(t, d.Free(a))
	_, err = d.Resolve(ref)
	require.ErrorIs(t, err, ErrStaleRecord)
	require.ErrorIs(t, d.CheckRecord(a), ErrStaleRecord)

	again, err := d.Malloc(24)
	require.NoError(t, err)
	require.Equal(t, a, again, "same size class reuses the freed block")
	_, err = d.Resolve(ref)
	require.ErrorIs(t, err, ErrStaleRecord, "a reused block must not resolve an old ref")

	fresh, err := d.RefOf(again)
	require.NoError(t, err)
	require.NotEqual(t, ref.Gen, fresh.Gen)
}

func TestFreeTwiceFails(t *testing.T) {
	d := newTestDB(t, 0)
	a, err := d.Malloc(8)
	require.NoError(t, err)
	require.NoError(t, d.Free(a))
	require.ErrorIs(t, d.Free(a), ErrStaleRecord)
}

func TestCheckRecordRejectsGarbage(t *testing.T) {
	d := newTestDB(t, 0)
	a, err := d.Malloc(8)
	require.NoError(t, err)

	for _, off := range []Offset{NullOffset, 3, a + 4, a + 4096, Offset(8)} {
		require.ErrorIs(t, d.CheckRecord(off), ErrInvalidOffset, "offset %v", off)
	}
}

func TestMallocRejectsOversizedRequests(t *testing.T) {
	d := newTestDB(t, MinChunkSize)
	_, err := d.Malloc(MinChunkSize)
	require.ErrorIs(t, err, ErrTooLarge)
	_, err = d.Malloc(0)
	require.Error(t, err)

	off, err := d.Malloc(d.MaxPayload())
	require.NoError(t, err)
	require.Zero(t, (int(off)-BlockHeaderSize)%d.ChunkSize(), "a full-chunk block starts a chunk")
}

func TestBlocksNeverCrossChunks(t *testing.T) {
	d := newTestDB(t, MinChunkSize)
	for i := range 64 {
		size := 40 + (i%7)*24
		off, err := d.Malloc(size)
		require.NoError(t, err)
		start := int(off) - BlockHeaderSize
		end := int(off) + size - 1
		require.Equal(t, start/d.ChunkSize(), end/d.ChunkSize(), "block %d at %v", i, off)
	}
	require.Greater(t, d.Size(), int64(MinChunkSize))
}

func TestStringRoundTrip(t *testing.T) {
	d := newTestDB(t, 0)

	for _, s := range []string{"", "a", "/usr/include/stdio.h", "ünïcödé"} {
		off, err := d.NewString(s)
		require.NoError(t, err)
		got, err := d.GetString(off)
		require.NoError(t, err)
		require.Equal(t, s, got)
		require.NoError(t, d.FreeString(off))
	}
	require.NoError(t, d.FreeString(NullOffset))

	small, err := d.Malloc(StringSize("abc"))
	require.NoError(t, err)
	require.Error(t, d.PutString(small, "this string is far too long for the block"))
}

func TestReopenKeepsRecordsAndRoots(t *testing.T) {
	fs := afero.NewMemMapFs()
	d, err := Open(fs, "index.pdom", Options{ChunkSize: 2048})
	require.NoError(t, err)

	var offs []Offset
	for i := range 100 {
		off, err := d.Malloc(12)
		require.NoError(t, err)
		require.NoError(t, d.PutInt(off, int32(i)))
		offs = append(offs, off)
	}
	name, err := d.NewString("main.cpp")
	require.NoError(t, err)
	require.NoError(t, d.SetRoot(2, name))
	require.NoError(t, d.Free(offs[10]))
	require.NoError(t, d.Close())
	require.ErrorIs(t, d.Flush(), ErrClosed)

	d, err = Open(fs, "index.pdom", Options{ChunkSize: 4096})
	require.NoError(t, err)
	defer d.Close()
	require.Equal(t, 2048, d.ChunkSize(), "an existing store keeps its chunk size")

	root, err := d.Root(2)
	require.NoError(t, err)
	s, err := d.GetString(root)
	require.NoError(t, err)
	require.Equal(t, "main.cpp", s)

	for i, off := range offs {
		if i == 10 {
			require.ErrorIs(t, d.CheckRecord(off), ErrStaleRecord)
			continue
		}
		v, err := d.GetInt(off)
		require.NoError(t, err)
		require.EqualValues(t, i, v)
	}

	reused, err := d.Malloc(12)
	require.NoError(t, err)
	require.Equal(t, offs[10], reused, "free lists survive a reopen")
}

func TestOpenRejectsForeignFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "junk", make([]byte, 4096), 0o644))
	_, err := Open(fs, "junk", Options{})
	require.ErrorIs(t, err, ErrBadHeader)
}

type failingFile struct {
	afero.File
	err error
}

func (f failingFile) WriteAt([]byte, int64) (int, error) { return 0, f.err }

type failingFs struct {
	afero.Fs
	err error
}

func (fs failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return failingFile{File: f, err: fs.err}, nil
}

func TestWriteFailureSurfacesAsStorageFault(t *testing.T) {
	diskFull := errors.New("no space left on device")
	d, err := Open(failingFs{Fs: afero.NewMemMapFs(), err: diskFull}, "index.pdom", Options{})
	require.NoError(t, err)

	_, err = d.Malloc(64)
	require.NoError(t, err)

	err = d.Flush()
	require.Error(t, err)
	require.True(t, IsStorageFault(err))
	require.ErrorIs(t, err, diskFull)

	var sf *StorageFault
	require.ErrorAs(t, err, &sf)
	require.Equal(t, "write chunk", sf.Op)
	require.Equal(t, diskFull, sf.Cause())
}

func TestOpenOnReadOnlyFsFails(t *testing.T) {
	_, err := Open(afero.NewReadOnlyFs(afero.NewMemMapFs()), "index.pdom", Options{})
	require.Error(t, err)
	require.True(t, IsStorageFault(err))
}
