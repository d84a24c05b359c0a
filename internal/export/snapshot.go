// Package export writes a portable copy of an index. Snapshots carry no
// record offsets, so they survive allocator changes and can be replayed into
// a fresh store.
package export

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"pdom/internal/ingest"
	"pdom/internal/pdom"
)

// SchemaVersion is bumped whenever the snapshot layout changes.
const SchemaVersion uint16 = 1

var ErrSchema = errors.New("export: unsupported snapshot schema")

// Snapshot is the whole index at one point in time.
type Snapshot struct {
	Schema   uint16    `msgpack:"schema"`
	Files    []File    `msgpack:"files"`
	Bindings []Binding `msgpack:"bindings"`
}

// File holds the names of one file, oldest first.
type File struct {
	Path  string `msgpack:"path"`
	Names []Name `msgpack:"names"`
}

// Name is one occurrence. Binding indexes Snapshot.Bindings, -1 when the
// name is unresolved.
type Name struct {
	Offset  int `msgpack:"offset"`
	Length  int `msgpack:"length"`
	Binding int `msgpack:"binding"`
}

// Binding is one binding with its capability values. Owner indexes
// Snapshot.Bindings, -1 at file scope.
type Binding struct {
	Kind         string            `msgpack:"kind"`
	Name         string            `msgpack:"name"`
	Owner        int               `msgpack:"owner"`
	Flags        []string          `msgpack:"flags,omitempty"`
	Ints         map[string]int32  `msgpack:"ints,omitempty"`
	Strings      map[string]string `msgpack:"strings,omitempty"`
	Declarations int               `msgpack:"declarations"`
}

// Build copies ix inside a single read transaction.
func Build(ix *pdom.Index) (*Snapshot, error) {
	snap := &Snapshot{Schema: SchemaVersion}
	err := ix.Read(func(tx *pdom.ReadTx) error {
		infos, err := collectBindings(tx)
		if err != nil {
			return err
		}
		index := make(map[pdom.BindingRef]int, len(infos))
		for i, bi := range infos {
			index[bi.info.Ref] = i
		}
		snap.Bindings = make([]Binding, len(infos))
		for i, bi := range infos {
			b := bi.out
			b.Owner = -1
			if !bi.info.Owner.IsNull() {
				owner, ok := index[bi.info.Owner]
				if !ok {
					return fmt.Errorf("binding %q: owner %v not in index", bi.info.Name, bi.info.Owner.Offset)
				}
				b.Owner = owner
			}
			snap.Bindings[i] = b
		}

		return tx.EachFile(func(f pdom.File) error {
			path, err := f.Path()
			if err != nil {
				return err
			}
			names, err := f.Names()
			if err != nil {
				return err
			}
			out := File{Path: path, Names: make([]Name, 0, len(names))}
			// the list is newest first
			for i := len(names) - 1; i >= 0; i-- {
				info, err := names[i].Info()
				if err != nil {
					return err
				}
				n := Name{Offset: info.Offset, Length: info.Length, Binding: -1}
				if !info.Binding.IsNull() {
					n.Binding = index[info.Binding]
				}
				out.Names = append(out.Names, n)
			}
			snap.Files = append(snap.Files, out)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].Path < snap.Files[j].Path })
	return snap, nil
}

type bindingInfo struct {
	info pdom.BindingInfo
	out  Binding
}

func collectBindings(tx *pdom.ReadTx) ([]bindingInfo, error) {
	var all []bindingInfo
	err := tx.EachBinding(func(b pdom.Binding) error {
		info, err := b.Info()
		if err != nil {
			return err
		}
		out := Binding{Kind: info.Kind, Name: info.Name, Declarations: info.Declarations}
		for _, c := range info.Flags {
			out.Flags = append(out.Flags, c.String())
		}
		for _, c := range b.Layout().Capabilities() {
			if v, err := b.IntField(c); err == nil {
				if out.Ints == nil {
					out.Ints = make(map[string]int32)
				}
				out.Ints[c.String()] = v
				continue
			} else if !errors.Is(err, pdom.ErrUnsupported) {
				return err
			}
			if v, err := b.StringField(c); err == nil {
				if out.Strings == nil {
					out.Strings = make(map[string]string)
				}
				out.Strings[c.String()] = v
			} else if !errors.Is(err, pdom.ErrUnsupported) {
				return err
			}
		}
		all = append(all, bindingInfo{info: info, out: out})
		return nil
	})
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].info, all[j].info
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Ref.Offset < b.Ref.Offset
	})
	return all, err
}

// Encode writes the snapshot as msgpack.
func (s *Snapshot) Encode(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(s)
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrSchema, s.Schema)
	}
	return &s, nil
}

// WriteFile encodes s next to path and renames it into place.
func WriteFile(fs afero.Fs, path string, s *Snapshot) (err error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := afero.TempFile(fs, dir, "snapshot-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = fs.Remove(f.Name())
		}
	}()
	if err := s.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fs.Rename(f.Name(), path)
}

// ReadFile decodes the snapshot at path.
func ReadFile(fs afero.Fs, path string) (*Snapshot, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Provider replays the snapshot as ingest records, oldest name first, so
// that applying it to an empty index rebuilds the same lists.
func (s *Snapshot) Provider() (ingest.Provider, error) {
	descs := make([]*ingest.BindingDesc, len(s.Bindings))
	for i, b := range s.Bindings {
		descs[i] = &ingest.BindingDesc{
			Kind:    b.Kind,
			Name:    b.Name,
			Flags:   b.Flags,
			Ints:    b.Ints,
			Strings: b.Strings,
		}
	}
	for i, b := range s.Bindings {
		if b.Owner < 0 {
			continue
		}
		if b.Owner >= len(descs) || b.Owner == i {
			return nil, fmt.Errorf("binding %d: bad owner %d", i, b.Owner)
		}
		descs[i].Owner = descs[b.Owner]
	}
	if err := checkOwnerChains(s.Bindings); err != nil {
		return nil, err
	}

	var records []ingest.Record
	for _, f := range s.Files {
		for _, n := range f.Names {
			rec := ingest.Record{File: f.Path, Offset: n.Offset, Length: n.Length}
			if n.Binding >= 0 {
				if n.Binding >= len(descs) {
					return nil, fmt.Errorf("%s: name at %d: bad binding %d", f.Path, n.Offset, n.Binding)
				}
				rec.Binding = descs[n.Binding]
			}
			records = append(records, rec)
		}
	}
	return ingest.NewSliceProvider(records...), nil
}

// checkOwnerChains rejects owner indexes that loop. Colors: 0 unvisited,
// 1 on the current chain, 2 known to reach global scope.
func checkOwnerChains(bindings []Binding) error {
	color := make([]uint8, len(bindings))
	for i := range bindings {
		var chain []int
		j := i
		for j >= 0 && color[j] == 0 {
			color[j] = 1
			chain = append(chain, j)
			j = bindings[j].Owner
		}
		if j >= 0 && color[j] == 1 {
			return fmt.Errorf("binding %d %q: %w", j, bindings[j].Name, ingest.ErrOwnerCycle)
		}
		for _, k := range chain {
			color[k] = 2
		}
	}
	return nil
}
