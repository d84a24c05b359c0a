package pdom

import (
	"time"

	"go.uber.org/atomic"

	"pdom/internal/db"
	"pdom/internal/logging"
)

// txState is shared by a transaction and every handle it hands out.
type txState struct {
	ix       *Index
	writable bool
	span     uint64 // enclosing trace span, 0 for reads
	done     atomic.Bool
}

func (s *txState) live() error {
	if s == nil || s.done.Load() {
		return ErrTxClosed
	}
	return nil
}

func (s *txState) liveWritable() error {
	if err := s.live(); err != nil {
		return err
	}
	if !s.writable {
		return ErrReadOnly
	}
	return nil
}

func (s *txState) db() *db.Database { return s.ix.db }

// ReadTx gives access to records while the index read lock is held.
// Handles obtained from it are invalid once the transaction ends.
// A ReadTx may be shared by goroutines started inside the callback.
type ReadTx struct {
	s *txState
}

// WriteTx extends ReadTx with structural updates; it holds the write lock.
type WriteTx struct {
	ReadTx
}

// Read runs fn under the read lock.
func (ix *Index) Read(fn func(tx *ReadTx) error) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := &txState{ix: ix}
	defer s.done.Store(true)
	return fn(&ReadTx{s: s})
}

// Write runs fn under the write lock. An error from fn is returned as is;
// records already changed by fn stay changed.
func (ix *Index) Write(fn func(tx *WriteTx) error) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	span := ix.begin("write")
	s := &txState{ix: ix, writable: true, span: span.ID()}
	err := fn(&WriteTx{ReadTx{s: s}})
	s.done.Store(true)

	detail := ""
	if err != nil {
		detail = err.Error()
		ix.log.Warn("write transaction failed", logging.Error(err), logging.ErrorTrace(err))
	}
	span.End(detail)
	ix.metrics.WriteDone(time.Since(start), ix.db.Size())
	return err
}

// FindFile looks up a file by path.
func (tx *ReadTx) FindFile(path string) (File, bool, error) {
	if err := tx.s.live(); err != nil {
		return File{}, false, err
	}
	rec, ok, err := tx.s.ix.files.find(NormalizePath(path))
	if err != nil || !ok {
		return File{}, false, err
	}
	return File{s: tx.s, rec: rec}, true, nil
}

// EachFile calls fn for every indexed file.
func (tx *ReadTx) EachFile(fn func(File) error) error {
	if err := tx.s.live(); err != nil {
		return err
	}
	return tx.s.ix.files.each(func(rec db.Offset) error {
		return fn(File{s: tx.s, rec: rec})
	})
}

// EachBinding calls fn for every binding.
func (tx *ReadTx) EachBinding(fn func(Binding) error) error {
	if err := tx.s.live(); err != nil {
		return err
	}
	return tx.s.ix.bindings.each(func(rec db.Offset) error {
		b, err := tx.s.binding(rec)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

// File dereferences a file ref taken in an earlier transaction.
func (tx *ReadTx) File(ref FileRef) (File, error) {
	rec, err := tx.resolve(ref.Ref)
	if err != nil {
		return File{}, err
	}
	return File{s: tx.s, rec: rec}, nil
}

// Name dereferences a name ref taken in an earlier transaction.
func (tx *ReadTx) Name(ref NameRef) (Name, error) {
	rec, err := tx.resolve(ref.Ref)
	if err != nil {
		return Name{}, err
	}
	return Name{s: tx.s, rec: rec}, nil
}

// Binding dereferences a binding ref taken in an earlier transaction.
func (tx *ReadTx) Binding(ref BindingRef) (Binding, error) {
	rec, err := tx.resolve(ref.Ref)
	if err != nil {
		return Binding{}, err
	}
	return tx.s.binding(rec)
}

func (tx *ReadTx) resolve(ref db.Ref) (db.Offset, error) {
	if err := tx.s.live(); err != nil {
		return db.NullOffset, err
	}
	return tx.s.db().Resolve(ref)
}

// FindBinding looks up a binding by kind, owner and name. A null owner
// means the binding is at global scope.
func (tx *ReadTx) FindBinding(nt NodeType, owner BindingRef, name string) (Binding, bool, error) {
	if err := tx.s.live(); err != nil {
		return Binding{}, false, err
	}
	ownerRec := db.NullOffset
	if !owner.IsNull() {
		var err error
		if ownerRec, err = tx.s.db().Resolve(owner.Ref); err != nil {
			return Binding{}, false, err
		}
	}
	rec, ok, err := tx.s.ix.bindings.find(bindingKey(nt, ownerRec, name))
	if err != nil || !ok {
		return Binding{}, false, err
	}
	b, err := tx.s.binding(rec)
	return b, err == nil, err
}
