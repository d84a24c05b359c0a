// Package prof runs the Go profilers for one CLI invocation.
package prof

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"runtime/pprof"
	rtrace "runtime/trace"

	"github.com/spf13/afero"
)

// Options names the output files; empty paths disable a profiler.
type Options struct {
	CPU   string
	Heap  string
	Trace string
}

// Session owns the running profilers.
type Session struct {
	fs    afero.Fs
	heap  string
	cpu   io.WriteCloser
	trace io.WriteCloser
}

// Start enables the CPU profiler and runtime tracer named in opts.
func Start(fs afero.Fs, opts Options) (*Session, error) {
	s := &Session{fs: fs, heap: opts.Heap}
	if opts.CPU != "" {
		f, err := fs.Create(opts.CPU)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
		s.cpu = f
	}
	if opts.Trace != "" {
		f, err := fs.Create(opts.Trace)
		if err == nil {
			if err = rtrace.Start(f); err != nil {
				_ = f.Close()
			}
		}
		if err != nil {
			_ = s.Stop()
			return nil, fmt.Errorf("start runtime trace: %w", err)
		}
		s.trace = f
	}
	return s, nil
}

// Stop ends every profiler and writes the heap profile. It is safe to call
// more than once.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.trace != nil {
		rtrace.Stop()
		errs = append(errs, s.trace.Close())
		s.trace = nil
	}
	if s.cpu != nil {
		pprof.StopCPUProfile()
		errs = append(errs, s.cpu.Close())
		s.cpu = nil
	}
	if s.heap != "" {
		errs = append(errs, s.writeHeap())
		s.heap = ""
	}
	return errors.Join(errs...)
}

func (s *Session) writeHeap() error {
	f, err := s.fs.Create(s.heap)
	if err != nil {
		return err
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write heap profile: %w", err)
	}
	return f.Close()
}
