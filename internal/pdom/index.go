// Package pdom keeps the name, binding and file records of a symbol index.
// Each Name sits on two intrusive doubly linked lists, one per binding and
// one per file. All access goes through Index.Read and Index.Write.
package pdom

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"pdom/internal/db"
	"pdom/internal/logging"
	"pdom/internal/metrics"
	"pdom/internal/trace"
)

// Options configures an index.
type Options struct {
	// Registry resolves binding discriminants. Required.
	Registry *Registry
	// Buckets sizes the file and binding maps of a new store.
	Buckets int
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *metrics.Index
}

// Index is the symbol index over one database. Structural updates run under
// its write lock and traversals under its read lock; see Read and Write.
type Index struct {
	mu       sync.RWMutex
	db       *db.Database
	reg      *Registry
	files    *hashMap
	bindings *hashMap
	log      *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.Index
	closed   bool
}

// Open attaches an index to d, creating the file and binding maps when the
// store is new. Once Open succeeds the index owns d; on error the caller
// still has to close it.
func Open(d *db.Database, opts Options) (*Index, error) {
	if opts.Registry == nil {
		return nil, errors.New("pdom: open without a registry")
	}
	ix := &Index{
		db:      d,
		reg:     opts.Registry,
		log:     opts.Logger,
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
	}
	if ix.log == nil {
		ix.log = slog.New(slog.DiscardHandler)
	}
	ix.log = logging.Namespace(ix.log, "pdom")
	if ix.tracer == nil {
		ix.tracer = trace.Nop
	}

	var err error
	if ix.files, err = openHashMap(d, "file", RootFileIndex, opts.Buckets, filePathAt); err != nil {
		return nil, err
	}
	if ix.bindings, err = openHashMap(d, "binding", RootBindingIndex, opts.Buckets, bindingKeyAt); err != nil {
		return nil, err
	}
	files, err := ix.files.count()
	if err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	bindings, err := ix.bindings.count()
	if err != nil {
		return nil, fmt.Errorf("count bindings: %w", err)
	}
	ix.log.Info("index opened", "size", d.Size(), "files", files, "bindings", bindings)
	return ix, nil
}

// Registry returns the discriminant registry.
func (ix *Index) Registry() *Registry { return ix.reg }

// Flush writes dirty chunks to the backing store.
func (ix *Index) Flush() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.db.Flush()
}

// Close flushes and closes the database.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	err := ix.db.Close()
	ix.log.Info("index closed", logging.Error(err))
	return err
}

func (ix *Index) begin(name string) *trace.Span {
	return trace.Begin(ix.tracer, trace.ScopeTx, name, 0)
}

// InsertName records one occurrence bound to binding, or unresolved when
// binding is null.
func (ix *Index) InsertName(occ Occurrence, binding BindingRef) (NameInfo, error) {
	var info NameInfo
	err := ix.Write(func(tx *WriteTx) error {
		var b Binding
		if !binding.IsNull() {
			var err error
			if b, err = tx.Binding(binding); err != nil {
				return err
			}
		}
		n, err := tx.InsertName(occ, b)
		if err != nil {
			return err
		}
		info, err = n.Info()
		return err
	})
	return info, err
}

// DeleteName removes one name from both of its lists.
func (ix *Index) DeleteName(ref NameRef) error {
	return ix.Write(func(tx *WriteTx) error {
		n, err := tx.Name(ref)
		if err != nil {
			return err
		}
		return tx.DeleteName(n)
	})
}

// InsertBinding inserts or updates the binding described by spec.
func (ix *Index) InsertBinding(spec BindingSpec) (BindingInfo, error) {
	var info BindingInfo
	err := ix.Write(func(tx *WriteTx) error {
		b, err := tx.InsertBinding(spec)
		if err != nil {
			return err
		}
		info, err = b.Info()
		return err
	})
	return info, err
}

// FindBinding looks a binding up by identity.
func (ix *Index) FindBinding(nt NodeType, owner BindingRef, name string) (BindingInfo, bool, error) {
	var (
		info  BindingInfo
		found bool
	)
	err := ix.Read(func(tx *ReadTx) error {
		b, ok, err := tx.FindBinding(nt, owner, name)
		if err != nil || !ok {
			return err
		}
		found = true
		info, err = b.Info()
		return err
	})
	return info, found, err
}

// Declarations lists the names bound to ref, newest first.
func (ix *Index) Declarations(ref BindingRef) ([]NameInfo, error) {
	var out []NameInfo
	err := ix.Read(func(tx *ReadTx) error {
		b, err := tx.Binding(ref)
		if err != nil {
			return err
		}
		names, err := b.Declarations()
		if err != nil {
			return err
		}
		out, err = namesInfo(names)
		return err
	})
	return out, err
}

// NamesInFile lists the names parsed from path, newest first. The boolean is
// false when the file was never indexed.
func (ix *Index) NamesInFile(path string) ([]NameInfo, bool, error) {
	var (
		out   []NameInfo
		found bool
	)
	err := ix.Read(func(tx *ReadTx) error {
		f, ok, err := tx.FindFile(path)
		if err != nil || !ok {
			return err
		}
		found = true
		names, err := f.Names()
		if err != nil {
			return err
		}
		out, err = namesInfo(names)
		return err
	})
	return out, found, err
}

// InvalidateFile deletes every name of path and returns how many were
// removed. Unknown paths remove nothing.
func (ix *Index) InvalidateFile(path string) (int, error) {
	var count int
	err := ix.Write(func(tx *WriteTx) error {
		f, ok, err := tx.FindFile(path)
		if err != nil || !ok {
			return err
		}
		count, err = tx.InvalidateFile(f)
		return err
	})
	if err == nil {
		ix.log.Info("file invalidated", "path", NormalizePath(path), "names", count)
	}
	return count, err
}

// ResolveBinding returns the binding of a name; false when unresolved.
func (ix *Index) ResolveBinding(ref NameRef) (BindingInfo, bool, error) {
	var (
		info  BindingInfo
		found bool
	)
	err := ix.Read(func(tx *ReadTx) error {
		n, err := tx.Name(ref)
		if err != nil {
			return err
		}
		b, ok, err := n.ResolveBinding()
		if err != nil || !ok {
			return err
		}
		found = true
		info, err = b.Info()
		return err
	})
	return info, found, err
}

// Files lists every indexed file ordered by path.
func (ix *Index) Files() ([]FileInfo, error) {
	var out []FileInfo
	err := ix.Read(func(tx *ReadTx) error {
		return tx.EachFile(func(f File) error {
			info, err := f.Info()
			if err != nil {
				return err
			}
			out = append(out, info)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, err
}

// Bindings lists every binding ordered by kind and name.
func (ix *Index) Bindings() ([]BindingInfo, error) {
	var out []BindingInfo
	err := ix.Read(func(tx *ReadTx) error {
		return tx.EachBinding(func(b Binding) error {
			info, err := b.Info()
			if err != nil {
				return err
			}
			out = append(out, info)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Ref.Offset < out[j].Ref.Offset
	})
	return out, err
}

// Stats summarizes the index.
type Stats struct {
	Files    int
	Bindings int
	Store    db.Stats
}

// Stats reports record counts and allocator counters.
func (ix *Index) Stats() (Stats, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var st Stats
	var err error
	if st.Files, err = ix.files.count(); err != nil {
		return Stats{}, fmt.Errorf("count files: %w", err)
	}
	if st.Bindings, err = ix.bindings.count(); err != nil {
		return Stats{}, fmt.Errorf("count bindings: %w", err)
	}
	st.Store = ix.db.Stats()
	return st, nil
}
