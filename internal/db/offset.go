package db

import "fmt"

// Offset addresses a record payload inside the database.
type Offset uint32

const (
	// NullOffset marks the absence of a record reference.
	NullOffset Offset = 0
)

// IsNull reports whether the offset is the null record.
func (o Offset) IsNull() bool { return o == NullOffset }

func (o Offset) String() string { return fmt.Sprintf("@%d", uint32(o)) }

// Ref pins an offset to the allocation that produced it. A Ref outlives
// the lock it was read under; dereferencing it again must go through
// Database.Resolve, which rejects freed or reused blocks.
type Ref struct {
	Offset Offset
	Gen    uint32
}

// IsNull reports whether the reference points nowhere.
func (r Ref) IsNull() bool { return r.Offset.IsNull() }

func (r Ref) String() string {
	if r.IsNull() {
		return "null"
	}
	return fmt.Sprintf("@%d#%d", uint32(r.Offset), r.Gen)
}
