package db

import "go.uber.org/atomic"

type counters struct {
	mallocs atomic.Int64
	frees   atomic.Int64
	reused  atomic.Int64
	inUse   atomic.Int64
}

// Stats is a point-in-time copy of the allocator counters. InUse counts
// block bytes, headers included; the counters cover this session only.
type Stats struct {
	Mallocs int64
	Frees   int64
	Reused  int64
	InUse   int64
	Size    int64
}

// Stats returns the allocator counters.
func (d *Database) Stats() Stats {
	return Stats{
		Mallocs: d.stats.mallocs.Load(),
		Frees:   d.stats.frees.Load(),
		Reused:  d.stats.reused.Load(),
		InUse:   d.stats.inUse.Load(),
		Size:    d.Size(),
	}
}
