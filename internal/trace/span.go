package trace

import (
	"time"

	"go.uber.org/atomic"
)

var (
	seq     = atomic.NewUint64(0)
	spanIDs = atomic.NewUint64(0)
)

// NextSeq orders events across tracers.
func NextSeq() uint64 { return seq.Inc() }

// Span is one open operation. A nil *Span is valid and records nothing, which
// is what Begin returns when the tracer filters the scope out.
type Span struct {
	t     Tracer
	end   Event
	start time.Time
	// only a failing End is emitted; see LevelError
	quiet bool
}

// Begin opens a span under parent (0 for a root span) and emits its begin
// event. At LevelError spans of filtered scopes are still opened, quietly.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() {
		return nil
	}
	level := t.Level()
	visible := level.ShouldEmit(scope)
	if !visible && level != LevelError {
		return nil
	}
	s := &Span{
		t:     t,
		start: time.Now(),
		quiet: !visible,
		end: Event{
			Kind:     KindSpanEnd,
			Scope:    scope,
			SpanID:   spanIDs.Inc(),
			ParentID: parent,
			Name:     name,
		},
	}
	if visible {
		begin := s.end
		begin.Kind = KindSpanBegin
		begin.Time = s.start
		t.Emit(&begin)
	}
	return s
}

// Point emits an instant event.
func Point(t Tracer, scope Scope, name, detail string, parent uint64) {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		Name:     name,
		Detail:   detail,
	})
}

// End closes the span. A non-empty detail marks a failure.
func (s *Span) End(detail string) time.Duration {
	if s == nil {
		return 0
	}
	now := time.Now()
	elapsed := now.Sub(s.start)
	if s.quiet && detail == "" {
		return elapsed
	}
	ev := s.end
	ev.Time, ev.Elapsed, ev.Detail = now, elapsed, detail
	s.t.Emit(&ev)
	return elapsed
}

// WithExtra attaches key=value to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil {
		return nil
	}
	if s.end.Extra == nil {
		s.end.Extra = make(map[string]string, 2)
	}
	s.end.Extra[key] = value
	return s
}

// ID returns the span ID, 0 for a filtered span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.end.SpanID
}
