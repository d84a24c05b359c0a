// Package db is a record arena over a paged file. Records are addressed by
// Offset; blocks are served from exact-size free lists and never cross a
// chunk, and every free bumps the block generation so a Ref taken earlier
// resolves to ErrStaleRecord instead of aliasing the next allocation.
package db

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"fortio.org/safecast"
	"github.com/spf13/afero"
)

const (
	// IntSize is the width of every record field.
	IntSize = 4
	// PtrSize is the width of a record pointer.
	PtrSize = 4

	// BlockHeaderSize covers the size and generation words preceding each payload.
	BlockHeaderSize = 8
	// BlockSizeDelta is the allocation granularity.
	BlockSizeDelta = 8
	// MinBlockSize holds the header and the free-list link.
	MinBlockSize = 16

	// DefaultChunkSize is the paging unit of the backing store.
	DefaultChunkSize = 16 * 1024
	// MinChunkSize keeps the header and a few blocks inside chunk 0.
	MinChunkSize = 1024

	// Version is bumped whenever the block or header layout changes.
	Version = 1

	// NumRoots is the number of root pointers kept in the header.
	NumRoots = 8
)

var magic = [4]byte{'P', 'D', 'O', 'M'}

// header layout
const (
	magicOffset     = 0
	versionOffset   = 4
	chunkSizeOffset = 8
	topOffset       = 12
	rootsOffset     = 16
	freeListsOffset = rootsOffset + NumRoots*PtrSize
)

var byteOrder = binary.LittleEndian

// Options configures a database.
type Options struct {
	// ChunkSize applies to new stores; existing stores keep their own.
	ChunkSize int
}

type chunk struct {
	buf   []byte
	dirty bool
}

// Database is a block allocator over one growable backing file. Records are
// addressed by Offset; fields are read and written with the typed accessors.
//
// The database serializes its chunk table internally, but it does not order
// structural edits: callers hold their own readers-writer lock around any
// sequence of accessor calls that must appear atomic.
type Database struct {
	file      afero.File
	name      string
	chunkSize int
	headerEnd int

	mu         sync.Mutex
	chunks     []*chunk
	fileChunks int
	closed     bool

	stats counters
}

// Open opens the store at path on fs, creating and formatting it when empty.
func Open(fs afero.Fs, path string, opts Options) (*Database, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fault("open", 0, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fault("stat", 0, err)
	}
	d := &Database{file: f, name: path}
	if info.Size() == 0 {
		err = d.format(opts)
	} else {
		err = d.load(info.Size())
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return d, nil
}

// OpenMemory creates a fresh database backed by an in-memory file system.
func OpenMemory(opts Options) (*Database, error) {
	return Open(afero.NewMemMapFs(), "pdom.db", opts)
}

func (d *Database) format(opts Options) error {
	size := opts.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	if size < MinChunkSize || size%BlockSizeDelta != 0 {
		return fmt.Errorf("chunk size %d: must be a multiple of %d and at least %d", size, BlockSizeDelta, MinChunkSize)
	}
	d.chunkSize = size
	d.headerEnd = headerSize(size)
	d.chunks = []*chunk{{buf: make([]byte, size), dirty: true}}
	buf := d.chunks[0].buf
	copy(buf[magicOffset:], magic[:])
	byteOrder.PutUint32(buf[versionOffset:], Version)
	byteOrder.PutUint32(buf[chunkSizeOffset:], uint32(size))
	byteOrder.PutUint32(buf[topOffset:], uint32(d.headerEnd))
	return nil
}

func (d *Database) load(fileSize int64) error {
	var hdr [16]byte
	if _, err := d.file.ReadAt(hdr[:], 0); err != nil && err != io.EOF {
		return fault("read header", 0, err)
	}
	if [4]byte(hdr[magicOffset:versionOffset]) != magic {
		return fmt.Errorf("%w: %s: bad magic", ErrBadHeader, d.name)
	}
	if v := byteOrder.Uint32(hdr[versionOffset:]); v != Version {
		return fmt.Errorf("%w: %s: version %d, want %d", ErrBadHeader, d.name, v, Version)
	}
	size, err := safecast.Conv[int](byteOrder.Uint32(hdr[chunkSizeOffset:]))
	if err != nil || size < MinChunkSize || int64(size) > fileSize || fileSize%int64(size) != 0 {
		return fmt.Errorf("%w: %s: chunk size does not match file size %d", ErrBadHeader, d.name, fileSize)
	}
	d.chunkSize = size
	d.headerEnd = headerSize(size)
	n, err := safecast.Conv[int](fileSize / int64(size))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBadHeader, d.name, err)
	}
	d.fileChunks = n
	d.chunks = make([]*chunk, n)
	return nil
}

func headerSize(chunkSize int) int {
	end := freeListsOffset + numSizeClasses(chunkSize)*PtrSize
	return roundUp(end, BlockSizeDelta)
}

func numSizeClasses(chunkSize int) int {
	return (chunkSize-MinBlockSize)/BlockSizeDelta + 1
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}

// ChunkSize returns the paging unit of this store.
func (d *Database) ChunkSize() int { return d.chunkSize }

// MaxPayload is the largest size Malloc accepts.
func (d *Database) MaxPayload() int { return d.chunkSize - BlockHeaderSize }

// chunkAt returns the chunk holding [off, off+n) and the position of off inside it.
func (d *Database) chunkAt(off int64, n int) (*chunk, int, error) {
	idx := int(off / int64(d.chunkSize))
	pos := int(off % int64(d.chunkSize))
	if pos+n > d.chunkSize {
		return nil, 0, fmt.Errorf("%w: access of %d bytes at %d crosses a chunk", ErrInvalidOffset, n, off)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, 0, ErrClosed
	}
	if off < 0 || idx >= len(d.chunks) {
		return nil, 0, fmt.Errorf("%w: %d beyond end of store", ErrInvalidOffset, off)
	}
	c := d.chunks[idx]
	if c == nil {
		c = &chunk{buf: make([]byte, d.chunkSize)}
		if idx < d.fileChunks {
			if _, err := d.file.ReadAt(c.buf, int64(idx)*int64(d.chunkSize)); err != nil && err != io.EOF {
				return nil, 0, fault("read chunk", int64(idx)*int64(d.chunkSize), err)
			}
		}
		d.chunks[idx] = c
	}
	return c, pos, nil
}

// grow appends zeroed chunks until the store covers end bytes.
func (d *Database) grow(end int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	for int64(len(d.chunks))*int64(d.chunkSize) < end {
		d.chunks = append(d.chunks, &chunk{buf: make([]byte, d.chunkSize), dirty: true})
	}
	return nil
}

// Flush writes every dirty chunk and syncs the backing file.
func (d *Database) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.flushLocked()
}

func (d *Database) flushLocked() error {
	for idx, c := range d.chunks {
		if c == nil || !c.dirty {
			continue
		}
		pos := int64(idx) * int64(d.chunkSize)
		if _, err := d.file.WriteAt(c.buf, pos); err != nil {
			return fault("write chunk", pos, err)
		}
		c.dirty = false
	}
	if len(d.chunks) > d.fileChunks {
		d.fileChunks = len(d.chunks)
	}
	if err := d.file.Sync(); err != nil {
		return fault("sync", 0, err)
	}
	return nil
}

// Close flushes the store and releases the backing file.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	err := d.flushLocked()
	d.closed = true
	if cerr := d.file.Close(); cerr != nil && err == nil {
		err = fault("close", 0, cerr)
	}
	return err
}

// Size reports the number of bytes the store currently spans.
func (d *Database) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.chunks)) * int64(d.chunkSize)
}
