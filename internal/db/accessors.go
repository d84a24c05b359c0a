package db

import (
	"fmt"

	"fortio.org/safecast"
)

func (d *Database) read(off Offset, n int) ([]byte, error) {
	c, pos, err := d.chunkAt(int64(off), n)
	if err != nil {
		return nil, err
	}
	return c.buf[pos : pos+n], nil
}

func (d *Database) write(off Offset, n int) ([]byte, error) {
	c, pos, err := d.chunkAt(int64(off), n)
	if err != nil {
		return nil, err
	}
	c.dirty = true
	return c.buf[pos : pos+n], nil
}

// GetInt reads a 32-bit signed field.
func (d *Database) GetInt(off Offset) (int32, error) {
	v, err := d.GetUint(off)
	return int32(v), err
}

// PutInt writes a 32-bit signed field.
func (d *Database) PutInt(off Offset, v int32) error {
	return d.PutUint(off, uint32(v))
}

// GetUint reads a 32-bit unsigned field.
func (d *Database) GetUint(off Offset) (uint32, error) {
	b, err := d.read(off, IntSize)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b), nil
}

// PutUint writes a 32-bit unsigned field.
func (d *Database) PutUint(off Offset, v uint32) error {
	b, err := d.write(off, IntSize)
	if err != nil {
		return err
	}
	byteOrder.PutUint32(b, v)
	return nil
}

// GetRecPtr reads a record pointer field.
func (d *Database) GetRecPtr(off Offset) (Offset, error) {
	v, err := d.GetUint(off)
	return Offset(v), err
}

// PutRecPtr writes a record pointer field.
func (d *Database) PutRecPtr(off Offset, rec Offset) error {
	return d.PutUint(off, uint32(rec))
}

// GetByte reads a single byte.
func (d *Database) GetByte(off Offset) (byte, error) {
	b, err := d.read(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PutByte writes a single byte.
func (d *Database) PutByte(off Offset, v byte) error {
	b, err := d.write(off, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// StringSize is the payload needed to store s with PutString.
func StringSize(s string) int { return IntSize + len(s) }

// GetString reads a length-prefixed string stored at off.
func (d *Database) GetString(off Offset) (string, error) {
	n, err := d.GetInt(off)
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > d.MaxPayload()-IntSize {
		return "", fmt.Errorf("%w: string at %v has length %d", ErrInvalidOffset, off, n)
	}
	b, err := d.read(off+IntSize, int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PutString writes s length-prefixed at off. The block at off must hold
// StringSize(s) bytes.
func (d *Database) PutString(off Offset, s string) error {
	capacity, err := d.payloadSize(off)
	if err != nil {
		return err
	}
	if StringSize(s) > capacity {
		return fmt.Errorf("string of %d bytes does not fit block %v of %d bytes", len(s), off, capacity)
	}
	n, err := safecast.Conv[int32](len(s))
	if err != nil {
		return fmt.Errorf("string length overflow: %w", err)
	}
	if err := d.PutInt(off, n); err != nil {
		return err
	}
	b, err := d.write(off+IntSize, len(s))
	if err != nil {
		return err
	}
	copy(b, s)
	return nil
}

// NewString allocates a block holding s and returns its offset.
func (d *Database) NewString(s string) (Offset, error) {
	off, err := d.Malloc(StringSize(s))
	if err != nil {
		return NullOffset, err
	}
	if err := d.PutString(off, s); err != nil {
		return NullOffset, err
	}
	return off, nil
}

// FreeString releases a block created by NewString. A null offset is ignored.
func (d *Database) FreeString(off Offset) error {
	if off.IsNull() {
		return nil
	}
	return d.Free(off)
}

// Root returns the i-th root pointer of the header.
func (d *Database) Root(i int) (Offset, error) {
	if i < 0 || i >= NumRoots {
		return NullOffset, fmt.Errorf("root index %d out of range", i)
	}
	return d.GetRecPtr(Offset(rootsOffset + i*PtrSize))
}

// SetRoot stores the i-th root pointer of the header.
func (d *Database) SetRoot(i int, rec Offset) error {
	if i < 0 || i >= NumRoots {
		return fmt.Errorf("root index %d out of range", i)
	}
	return d.PutRecPtr(Offset(rootsOffset+i*PtrSize), rec)
}
