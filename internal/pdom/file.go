package pdom

import (
	"fmt"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"pdom/internal/db"
	"pdom/internal/trace"
)

// File record layout.
const (
	filePath      = 0 * db.IntSize
	fileFirstName = 1 * db.IntSize

	fileRecordSize = 2 * db.IntSize
)

// FileRef identifies a file across transactions.
type FileRef struct{ db.Ref }

// File is a handle on a file record, valid inside its transaction.
type File struct {
	s   *txState
	rec db.Offset
}

// NormalizePath returns the identity of a file path: cleaned and in Unicode
// normalization form C.
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}
	return norm.NFC.String(filepath.Clean(path))
}

func filePathAt(d *db.Database, rec db.Offset) (string, error) {
	s, err := d.GetRecPtr(rec + filePath)
	if err != nil || s.IsNull() {
		return "", err
	}
	return d.GetString(s)
}

// IsNull reports whether f is the zero File.
func (f File) IsNull() bool { return f.rec.IsNull() }

// Record returns the record offset.
func (f File) Record() db.Offset { return f.rec }

// Ref pins the file for use in a later transaction.
func (f File) Ref() (FileRef, error) {
	if err := f.s.live(); err != nil {
		return FileRef{}, err
	}
	ref, err := f.s.db().RefOf(f.rec)
	return FileRef{ref}, err
}

// Path returns the normalized path.
func (f File) Path() (string, error) {
	if err := f.s.live(); err != nil {
		return "", err
	}
	return filePathAt(f.s.db(), f.rec)
}

// FirstName returns the head of the file's name list.
func (f File) FirstName() (Name, bool, error) {
	if err := f.s.live(); err != nil {
		return Name{}, false, err
	}
	return f.s.nameAt(f.rec + fileFirstName)
}

// SetFirstName replaces the head of the name list. Callers keep the list
// consistent; InsertName and DeleteName do it for them.
func (f File) SetFirstName(n Name) error {
	if err := f.s.liveWritable(); err != nil {
		return err
	}
	return f.setFirstName(n.rec)
}

func (f File) setFirstName(rec db.Offset) error {
	return f.s.db().PutRecPtr(f.rec+fileFirstName, rec)
}

// EachName walks the name list from the head, newest first.
func (f File) EachName(fn func(Name) error) error {
	n, ok, err := f.FirstName()
	for ; err == nil && ok; n, ok, err = n.NextInFile() {
		if err := fn(n); err != nil {
			return err
		}
	}
	return err
}

// Names collects the name list.
func (f File) Names() ([]Name, error) {
	var out []Name
	err := f.EachName(func(n Name) error {
		out = append(out, n)
		return nil
	})
	return out, err
}

// InsertOrGetFile returns the file record for path, creating it with an
// empty name list on first use.
func (tx *WriteTx) InsertOrGetFile(path string) (File, error) {
	if err := tx.s.liveWritable(); err != nil {
		return File{}, err
	}
	key := NormalizePath(path)
	if key == "" {
		return File{}, fmt.Errorf("insert file: empty path")
	}
	ix := tx.s.ix
	rec, ok, err := ix.files.find(key)
	if err != nil {
		return File{}, err
	}
	if ok {
		return File{s: tx.s, rec: rec}, nil
	}

	d := tx.s.db()
	if rec, err = d.Malloc(fileRecordSize); err != nil {
		return File{}, err
	}
	str, err := d.NewString(key)
	if err != nil {
		return File{}, err
	}
	if err := d.PutRecPtr(rec+filePath, str); err != nil {
		return File{}, err
	}
	if err := ix.files.insert(key, rec); err != nil {
		return File{}, fmt.Errorf("register file %q: %w", key, err)
	}
	ix.log.Debug("file added", "path", key, "record", rec)
	return File{s: tx.s, rec: rec}, nil
}

// InvalidateFile deletes every name parsed from f, detaching each from its
// binding, and leaves f with an empty list. It returns the number of names
// removed.
func (tx *WriteTx) InvalidateFile(f File) (int, error) {
	if err := tx.s.liveWritable(); err != nil {
		return 0, err
	}
	if f.s != tx.s {
		return 0, fmt.Errorf("file %v belongs to another transaction", f.rec)
	}
	path, err := f.Path()
	if err != nil {
		return 0, err
	}
	span := trace.Begin(tx.s.ix.tracer, trace.ScopeFile, "invalidate:"+path, tx.s.span)

	count := 0
	for {
		n, ok, err := f.FirstName()
		if err != nil {
			span.End(err.Error())
			return count, err
		}
		if !ok {
			break
		}
		if err := tx.DeleteName(n); err != nil {
			span.End(err.Error())
			return count, fmt.Errorf("invalidate %q: %w", path, err)
		}
		count++
	}
	if err := f.setFirstName(db.NullOffset); err != nil {
		span.End(err.Error())
		return count, err
	}

	span.WithExtra("names", fmt.Sprint(count)).End("")
	tx.s.ix.metrics.FileInvalidated()
	tx.s.ix.log.Debug("file invalidated", "path", path, "names", count)
	return count, nil
}
