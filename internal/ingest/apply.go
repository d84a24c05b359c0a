package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pdom/internal/pdom"
	"pdom/internal/trace"
)

// Summary counts what Apply changed.
type Summary struct {
	Files   int
	Names   int
	Removed int
}

// Apply reads every record of p, then rebuilds each touched file in its own
// write transaction: the file's old names are invalidated once and the new
// occurrences inserted in input order. Files are processed in order of first
// appearance; a failure stops the run and earlier files stay applied.
func Apply(ctx context.Context, ix *pdom.Index, p Provider, opts ...Option) (Summary, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var order []string
	byFile := make(map[string][]Record)
	for {
		rec, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, err
		}
		key := pdom.NormalizePath(rec.File)
		if _, ok := byFile[key]; !ok {
			order = append(order, key)
		}
		byFile[key] = append(byFile[key], rec)
	}

	for _, path := range order {
		o.emit(Event{File: path, Status: StatusQueued})
	}

	tracer := trace.FromContext(ctx)
	var sum Summary
	for _, path := range order {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		o.emit(Event{File: path, Status: StatusWorking})
		start := time.Now()
		span := trace.Begin(tracer, trace.ScopeFile, "ingest:"+path, trace.CurrentSpan(ctx))
		removed, err := applyFile(ix, path, byFile[path])
		if err != nil {
			span.End(err.Error())
			o.emit(Event{File: path, Status: StatusError, Err: err, Elapsed: time.Since(start)})
			return sum, fmt.Errorf("ingest %s: %w", path, err)
		}
		span.WithExtra("names", fmt.Sprint(len(byFile[path]))).End("")
		o.emit(Event{
			File: path, Status: StatusDone,
			Names: len(byFile[path]), Removed: removed, Elapsed: time.Since(start),
		})
		sum.Files++
		sum.Names += len(byFile[path])
		sum.Removed += removed
	}
	return sum, nil
}

// applyFile vets every binding of the batch before the write transaction,
// so a bad record leaves the file's current names in place.
func applyFile(ix *pdom.Index, path string, records []Record) (int, error) {
	r := newResolver(ix.Registry())
	for _, rec := range records {
		if rec.Binding == nil {
			continue
		}
		if err := r.prepare(rec.Binding); err != nil {
			return 0, err
		}
	}

	removed := 0
	err := ix.Write(func(tx *pdom.WriteTx) error {
		f, ok, err := tx.FindFile(path)
		if err != nil {
			return err
		}
		if ok {
			if removed, err = tx.InvalidateFile(f); err != nil {
				return err
			}
		}
		bound := make(map[*BindingDesc]pdom.Binding, len(r.specs))
		for _, rec := range records {
			var b pdom.Binding
			if rec.Binding != nil {
				if b, err = r.binding(tx, bound, rec.Binding); err != nil {
					return err
				}
			}
			occ := pdom.Occurrence{File: path, Offset: rec.Offset, Length: rec.Length}
			if _, err := tx.InsertName(occ, b); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// resolver turns binding descriptions into specs ahead of the write, then
// into bindings inside it.
type resolver struct {
	reg      *pdom.Registry
	specs    map[*BindingDesc]pdom.BindingSpec
	visiting map[*BindingDesc]bool
}

func newResolver(reg *pdom.Registry) *resolver {
	return &resolver{
		reg:      reg,
		specs:    make(map[*BindingDesc]pdom.BindingSpec),
		visiting: make(map[*BindingDesc]bool),
	}
}

// prepare checks desc and its owner chain against the registry.
func (r *resolver) prepare(desc *BindingDesc) error {
	if _, ok := r.specs[desc]; ok {
		return nil
	}
	if r.visiting[desc] {
		return fmt.Errorf("%w: %s %q", ErrOwnerCycle, desc.Kind, desc.Name)
	}
	r.visiting[desc] = true
	defer delete(r.visiting, desc)

	spec, err := r.spec(desc)
	if err != nil {
		return err
	}
	if desc.Owner != nil {
		if err := r.prepare(desc.Owner); err != nil {
			return err
		}
	}
	r.specs[desc] = spec
	return nil
}

func (r *resolver) binding(tx *pdom.WriteTx, bound map[*BindingDesc]pdom.Binding, desc *BindingDesc) (pdom.Binding, error) {
	if b, ok := bound[desc]; ok {
		return b, nil
	}
	spec, ok := r.specs[desc]
	if !ok {
		return pdom.Binding{}, fmt.Errorf("binding %s %q was not prepared", desc.Kind, desc.Name)
	}
	if desc.Owner != nil {
		owner, err := r.binding(tx, bound, desc.Owner)
		if err != nil {
			return pdom.Binding{}, err
		}
		if spec.Owner, err = owner.Ref(); err != nil {
			return pdom.Binding{}, err
		}
	}
	b, err := tx.InsertBinding(spec)
	if err != nil {
		return pdom.Binding{}, fmt.Errorf("binding %s %q: %w", desc.Kind, desc.Name, err)
	}
	bound[desc] = b
	return b, nil
}

func (r *resolver) spec(desc *BindingDesc) (pdom.BindingSpec, error) {
	layout, ok := r.reg.LookupName(desc.Kind)
	if !ok {
		return pdom.BindingSpec{}, fmt.Errorf("%w: kind %q", pdom.ErrUnknownNodeType, desc.Kind)
	}
	spec := pdom.BindingSpec{Type: layout.Type(), Name: desc.Name}
	capability := func(name string) (pdom.Capability, error) {
		c, ok := pdom.ParseCapability(name)
		if !ok {
			return pdom.CapInvalid, fmt.Errorf("binding %q: unknown capability %q", desc.Name, name)
		}
		return c, nil
	}
	if len(desc.Flags) > 0 {
		spec.Flags = make(map[pdom.Capability]bool, len(desc.Flags))
		for _, name := range desc.Flags {
			c, err := capability(name)
			if err != nil {
				return pdom.BindingSpec{}, err
			}
			spec.Flags[c] = true
		}
	}
	if len(desc.Ints) > 0 {
		spec.Ints = make(map[pdom.Capability]int32, len(desc.Ints))
		for name, v := range desc.Ints {
			c, err := capability(name)
			if err != nil {
				return pdom.BindingSpec{}, err
			}
			spec.Ints[c] = v
		}
	}
	if len(desc.Strings) > 0 {
		spec.Strings = make(map[pdom.Capability]string, len(desc.Strings))
		for name, v := range desc.Strings {
			c, err := capability(name)
			if err != nil {
				return pdom.BindingSpec{}, err
			}
			spec.Strings[c] = v
		}
	}
	if err := layout.Check(spec); err != nil {
		return pdom.BindingSpec{}, fmt.Errorf("binding %s %q: %w", desc.Kind, desc.Name, err)
	}
	return spec, nil
}
