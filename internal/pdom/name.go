package pdom

import (
	"fmt"

	"fortio.org/safecast"

	"pdom/internal/db"
)

// Name record layout.
const (
	nameFileRec     = 0 * db.IntSize
	nameFilePrev    = 1 * db.IntSize
	nameFileNext    = 2 * db.IntSize
	nameBindingRec  = 3 * db.IntSize
	nameBindingPrev = 4 * db.IntSize
	nameBindingNext = 5 * db.IntSize
	nameNodeOffset  = 6 * db.IntSize
	nameNodeLength  = 7 * db.IntSize

	nameRecordSize = 8 * db.IntSize
)

// NameRef identifies a name across transactions.
type NameRef struct{ db.Ref }

// Occurrence is one name position reported by the parser.
type Occurrence struct {
	File   string
	Offset int
	Length int
}

// Name is a handle on a name record, valid inside its transaction.
type Name struct {
	s   *txState
	rec db.Offset
}

// nameAt follows the name pointer stored at field.
func (s *txState) nameAt(field db.Offset) (Name, bool, error) {
	rec, err := s.db().GetRecPtr(field)
	if err != nil || rec.IsNull() {
		return Name{}, false, err
	}
	return Name{s: s, rec: rec}, true, nil
}

// IsNull reports whether n is the zero Name.
func (n Name) IsNull() bool { return n.rec.IsNull() }

// Record returns the record offset.
func (n Name) Record() db.Offset { return n.rec }

// Ref pins the name for use in a later transaction.
func (n Name) Ref() (NameRef, error) {
	if err := n.s.live(); err != nil {
		return NameRef{}, err
	}
	ref, err := n.s.db().RefOf(n.rec)
	return NameRef{ref}, err
}

func (n Name) ptr(field db.Offset) (db.Offset, error) {
	if err := n.s.live(); err != nil {
		return db.NullOffset, err
	}
	return n.s.db().GetRecPtr(n.rec + field)
}

func (n Name) link(field db.Offset) (Name, bool, error) {
	if err := n.s.live(); err != nil {
		return Name{}, false, err
	}
	return n.s.nameAt(n.rec + field)
}

func (n Name) setPtr(field, rec db.Offset) error {
	return n.s.db().PutRecPtr(n.rec+field, rec)
}

// File returns the file the name was parsed from.
func (n Name) File() (File, error) {
	rec, err := n.ptr(nameFileRec)
	if err != nil {
		return File{}, err
	}
	if rec.IsNull() {
		return File{}, fmt.Errorf("name %v has no file", n.rec)
	}
	return File{s: n.s, rec: rec}, nil
}

// FileName returns the path of the owning file.
func (n Name) FileName() (string, error) {
	f, err := n.File()
	if err != nil {
		return "", err
	}
	return f.Path()
}

// ResolveBinding returns the binding the name resolved to; false when the
// name is an unresolved reference.
func (n Name) ResolveBinding() (Binding, bool, error) {
	rec, err := n.ptr(nameBindingRec)
	if err != nil || rec.IsNull() {
		return Binding{}, false, err
	}
	b, err := n.s.binding(rec)
	return b, err == nil, err
}

// Identifier returns the name of the bound binding, "" when unresolved.
func (n Name) Identifier() (string, error) {
	b, ok, err := n.ResolveBinding()
	if err != nil || !ok {
		return "", err
	}
	return b.Name()
}

func (n Name) PrevInBinding() (Name, bool, error) { return n.link(nameBindingPrev) }
func (n Name) NextInBinding() (Name, bool, error) { return n.link(nameBindingNext) }
func (n Name) PrevInFile() (Name, bool, error)    { return n.link(nameFilePrev) }
func (n Name) NextInFile() (Name, bool, error)    { return n.link(nameFileNext) }

// NodeOffset returns the byte offset of the name in its file.
func (n Name) NodeOffset() (int, error) {
	v, err := n.ptr(nameNodeOffset)
	return int(v), err
}

// NodeLength returns the byte length of the name.
func (n Name) NodeLength() (int, error) {
	v, err := n.ptr(nameNodeLength)
	return int(v), err
}

// The record keeps no role, line table or source text; these accessors of
// the general AST name contract are reported as unsupported.

func (n Name) IsDeclaration() (bool, error) { return false, unsupported("name", "is-declaration") }
func (n Name) IsReference() (bool, error)   { return false, unsupported("name", "is-reference") }
func (n Name) IsDefinition() (bool, error)  { return false, unsupported("name", "is-definition") }
func (n Name) StartingLine() (int, error)   { return 0, unsupported("name", "starting-line") }
func (n Name) RawSignature() (string, error) {
	return "", unsupported("name", "raw-signature")
}

// InsertName records one occurrence. The file is created on first use; a
// zero binding leaves the name unresolved and out of every binding list.
// The new name becomes the head of both of its lists.
func (tx *WriteTx) InsertName(occ Occurrence, binding Binding) (Name, error) {
	if err := tx.s.liveWritable(); err != nil {
		return Name{}, err
	}
	d := tx.s.db()
	if !binding.IsNull() {
		if binding.s != tx.s {
			return Name{}, fmt.Errorf("binding %v belongs to another transaction", binding.rec)
		}
		if err := d.CheckRecord(binding.rec); err != nil {
			return Name{}, err
		}
	}
	offset, err := safecast.Conv[uint32](occ.Offset)
	if err != nil {
		return Name{}, fmt.Errorf("occurrence offset %d: %w", occ.Offset, err)
	}
	length, err := safecast.Conv[uint32](occ.Length)
	if err != nil {
		return Name{}, fmt.Errorf("occurrence length %d: %w", occ.Length, err)
	}

	file, err := tx.InsertOrGetFile(occ.File)
	if err != nil {
		return Name{}, err
	}
	fileHead, err := d.GetRecPtr(file.rec + fileFirstName)
	if err != nil {
		return Name{}, err
	}
	bindingHead := db.NullOffset
	if !binding.IsNull() {
		if bindingHead, err = d.GetRecPtr(binding.rec + bindingFirstDecl); err != nil {
			return Name{}, err
		}
	}

	rec, err := d.Malloc(nameRecordSize)
	if err != nil {
		return Name{}, err
	}
	n := Name{s: tx.s, rec: rec}
	if err := n.link2(file, fileHead, binding, bindingHead, offset, length); err != nil {
		return Name{}, fmt.Errorf("insert name %v into %q: %w", rec, occ.File, err)
	}
	tx.s.ix.metrics.NameInserted()
	return n, nil
}

func (n Name) link2(file File, fileHead db.Offset, binding Binding, bindingHead db.Offset, offset, length uint32) error {
	d := n.s.db()
	if !binding.IsNull() {
		if err := n.setPtr(nameBindingRec, binding.rec); err != nil {
			return err
		}
		if err := n.setPtr(nameBindingNext, bindingHead); err != nil {
			return err
		}
		if !bindingHead.IsNull() {
			if err := d.PutRecPtr(bindingHead+nameBindingPrev, n.rec); err != nil {
				return err
			}
		}
		if err := binding.setFirstDeclaration(n.rec); err != nil {
			return err
		}
	}

	if err := n.setPtr(nameFileRec, file.rec); err != nil {
		return err
	}
	if err := n.setPtr(nameFileNext, fileHead); err != nil {
		return err
	}
	if !fileHead.IsNull() {
		if err := d.PutRecPtr(fileHead+nameFilePrev, n.rec); err != nil {
			return err
		}
	}
	if err := file.setFirstName(n.rec); err != nil {
		return err
	}

	if err := d.PutUint(n.rec+nameNodeOffset, offset); err != nil {
		return err
	}
	return d.PutUint(n.rec+nameNodeLength, length)
}

// DeleteName unlinks n from its binding list and its file list, then frees
// the record. Every pointer is read before the first write.
func (tx *WriteTx) DeleteName(n Name) error {
	if err := tx.s.liveWritable(); err != nil {
		return err
	}
	if n.s != tx.s {
		return fmt.Errorf("name %v belongs to another transaction", n.rec)
	}
	d := tx.s.db()
	if err := d.CheckRecord(n.rec); err != nil {
		return err
	}

	var links [nameBindingNext/db.IntSize + 1]db.Offset
	for i := range links {
		v, err := d.GetRecPtr(n.rec + db.Offset(i*db.IntSize))
		if err != nil {
			return err
		}
		links[i] = v
	}
	fileRec := links[nameFileRec/db.IntSize]
	bindingRec := links[nameBindingRec/db.IntSize]

	if err := unlink(d, n.rec, bindingRec, bindingFirstDecl,
		links[nameBindingPrev/db.IntSize], links[nameBindingNext/db.IntSize],
		nameBindingPrev, nameBindingNext); err != nil {
		return fmt.Errorf("unlink name %v from binding %v: %w", n.rec, bindingRec, err)
	}
	if err := unlink(d, n.rec, fileRec, fileFirstName,
		links[nameFilePrev/db.IntSize], links[nameFileNext/db.IntSize],
		nameFilePrev, nameFileNext); err != nil {
		return fmt.Errorf("unlink name %v from file %v: %w", n.rec, fileRec, err)
	}
	if err := d.Free(n.rec); err != nil {
		return fmt.Errorf("free name %v: %w", n.rec, err)
	}
	tx.s.ix.metrics.NameDeleted()
	return nil
}

// unlink removes rec from the list owned by owner. Without a predecessor rec
// must be the owner's head, which then moves to next.
func unlink(d *db.Database, rec, owner db.Offset, headField, prev, next, prevField, nextField db.Offset) error {
	if owner.IsNull() {
		return nil
	}
	if prev.IsNull() {
		head, err := d.GetRecPtr(owner + headField)
		if err != nil {
			return err
		}
		if head != rec {
			return fmt.Errorf("list head is %v, not %v", head, rec)
		}
		if err := d.PutRecPtr(owner+headField, next); err != nil {
			return err
		}
	} else if err := d.PutRecPtr(prev+nextField, next); err != nil {
		return err
	}
	if next.IsNull() {
		return nil
	}
	return d.PutRecPtr(next+prevField, prev)
}
