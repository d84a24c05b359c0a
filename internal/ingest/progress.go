package ingest

import "time"

// Status is the state of one file during Apply.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "applying"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress on one file. Names and Removed are set once the
// file is done.
type Event struct {
	File    string
	Status  Status
	Names   int
	Removed int
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Apply calls it from its own
// goroutine, outside any index lock.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- ev
}

// Option adjusts Apply.
type Option func(*options)

type options struct {
	progress ProgressSink
}

// WithProgress reports per-file progress to sink.
func WithProgress(sink ProgressSink) Option {
	return func(o *options) { o.progress = sink }
}

func (o *options) emit(ev Event) {
	if o.progress != nil {
		o.progress.OnEvent(ev)
	}
}
