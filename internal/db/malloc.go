package db

import (
	"fmt"

	"fortio.org/safecast"
)

// sizeWord and genWord locate the block header words preceding a payload.
func sizeWord(off Offset) Offset { return off - BlockHeaderSize }

func genWord(off Offset) Offset { return off - BlockHeaderSize + IntSize }

func (d *Database) top() (int64, error) {
	v, err := d.GetUint(topOffset)
	return int64(v), err
}

func (d *Database) setTop(v int64) error {
	u, err := safecast.Conv[uint32](v)
	if err != nil {
		return fmt.Errorf("database exceeds addressable size: %w", err)
	}
	return d.PutUint(topOffset, u)
}

func (d *Database) freeListHead(blockSize int) Offset {
	return Offset(freeListsOffset + (blockSize-MinBlockSize)/BlockSizeDelta*PtrSize)
}

// blockSizeFor returns the rounded block size serving a payload of n bytes.
func (d *Database) blockSizeFor(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("malloc of %d bytes", n)
	}
	size := roundUp(n+BlockHeaderSize, BlockSizeDelta)
	if size < MinBlockSize {
		size = MinBlockSize
	}
	if size > d.chunkSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, d.chunkSize)
	}
	return size, nil
}

// Malloc allocates a zeroed block with room for size bytes. A freed block of
// the same size class is reused before the store grows.
func (d *Database) Malloc(size int) (Offset, error) {
	blockSize, err := d.blockSizeFor(size)
	if err != nil {
		return NullOffset, err
	}

	head := d.freeListHead(blockSize)
	off, err := d.GetRecPtr(head)
	if err != nil {
		return NullOffset, err
	}
	if !off.IsNull() {
		next, err := d.GetRecPtr(off)
		if err != nil {
			return NullOffset, err
		}
		if err := d.PutRecPtr(head, next); err != nil {
			return NullOffset, err
		}
		d.stats.reused.Inc()
	} else {
		off, err = d.carve(blockSize)
		if err != nil {
			return NullOffset, err
		}
	}

	gen, err := d.GetUint(genWord(off))
	if err != nil {
		return NullOffset, err
	}
	if err := d.PutUint(genWord(off), gen+1); err != nil {
		return NullOffset, err
	}
	if err := d.PutInt(sizeWord(off), int32(blockSize)); err != nil {
		return NullOffset, err
	}
	payload, err := d.write(off, blockSize-BlockHeaderSize)
	if err != nil {
		return NullOffset, err
	}
	clear(payload)

	d.stats.mallocs.Inc()
	d.stats.inUse.Add(int64(blockSize))
	return off, nil
}

// carve takes a new block from the end of the allocated space. The tail of a
// chunk too small for the block becomes a free block of its own size class.
func (d *Database) carve(blockSize int) (Offset, error) {
	top, err := d.top()
	if err != nil {
		return NullOffset, err
	}
	chunkEnd := (top/int64(d.chunkSize) + 1) * int64(d.chunkSize)
	if top+int64(blockSize) > chunkEnd {
		if rest := int(chunkEnd - top); rest >= MinBlockSize {
			if err := d.grow(chunkEnd); err != nil {
				return NullOffset, err
			}
			if err := d.pushFree(Offset(top+BlockHeaderSize), rest); err != nil {
				return NullOffset, err
			}
		}
		top = chunkEnd
	}
	if err := d.grow(top + int64(blockSize)); err != nil {
		return NullOffset, err
	}
	if err := d.setTop(top + int64(blockSize)); err != nil {
		return NullOffset, err
	}
	return Offset(top + BlockHeaderSize), nil
}

func (d *Database) pushFree(off Offset, blockSize int) error {
	head := d.freeListHead(blockSize)
	next, err := d.GetRecPtr(head)
	if err != nil {
		return err
	}
	if err := d.PutInt(sizeWord(off), -int32(blockSize)); err != nil {
		return err
	}
	if err := d.PutRecPtr(off, next); err != nil {
		return err
	}
	return d.PutRecPtr(head, off)
}

// Free returns the block at off to its free list. Its generation survives,
// so refs taken before the free keep failing Resolve after reuse.
func (d *Database) Free(off Offset) error {
	blockSize, err := d.payloadSize(off)
	if err != nil {
		return err
	}
	blockSize += BlockHeaderSize
	if err := d.pushFree(off, blockSize); err != nil {
		return err
	}
	d.stats.frees.Inc()
	d.stats.inUse.Sub(int64(blockSize))
	return nil
}

// payloadSize validates off as a live block and returns its usable size.
func (d *Database) payloadSize(off Offset) (int, error) {
	if off.IsNull() || int(off)%BlockSizeDelta != 0 || int(off) < d.headerEnd+BlockHeaderSize {
		return 0, invalidOffset(off)
	}
	top, err := d.top()
	if err != nil {
		return 0, err
	}
	if int64(off) >= top {
		return 0, invalidOffset(off)
	}
	size, err := d.GetInt(sizeWord(off))
	if err != nil {
		return 0, err
	}
	switch {
	case size < 0:
		return 0, staleRecord(off)
	case size < MinBlockSize || int(size) > d.chunkSize:
		return 0, invalidOffset(off)
	}
	return int(size) - BlockHeaderSize, nil
}

// CheckRecord reports whether off addresses a live block.
func (d *Database) CheckRecord(off Offset) error {
	_, err := d.payloadSize(off)
	return err
}

// RefOf pins the live block at off to its current generation.
func (d *Database) RefOf(off Offset) (Ref, error) {
	if off.IsNull() {
		return Ref{}, nil
	}
	if err := d.CheckRecord(off); err != nil {
		return Ref{}, err
	}
	gen, err := d.GetUint(genWord(off))
	if err != nil {
		return Ref{}, err
	}
	return Ref{Offset: off, Gen: gen}, nil
}

// Resolve returns the offset of ref if its block is still the allocation
// ref was taken from.
func (d *Database) Resolve(ref Ref) (Offset, error) {
	if ref.IsNull() {
		return NullOffset, invalidOffset(ref.Offset)
	}
	if err := d.CheckRecord(ref.Offset); err != nil {
		return NullOffset, err
	}
	gen, err := d.GetUint(genWord(ref.Offset))
	if err != nil {
		return NullOffset, err
	}
	if gen != ref.Gen {
		return NullOffset, staleRecord(ref.Offset)
	}
	return ref.Offset, nil
}
