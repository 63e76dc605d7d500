package session

import "sync/atomic"

// Counters hold live per-session figures written by the decode loop and read
// by status endpoints without locking.
type Counters struct {
	Frames            atomic.Int64
	NotFound          atomic.Int64
	DecodeErrors      atomic.Int64
	FrameErrors       atomic.Int64
	DiscardedSeen     atomic.Int64
	DiscardedCooldown atomic.Int64
}

// CounterSnapshot is a plain copy of Counters.
type CounterSnapshot struct {
	Frames            int64 `json:"frames"`
	NotFound          int64 `json:"not_found"`
	DecodeErrors      int64 `json:"decode_errors"`
	FrameErrors       int64 `json:"frame_errors"`
	DiscardedSeen     int64 `json:"discarded_seen"`
	DiscardedCooldown int64 `json:"discarded_cooldown"`
}

// Discarded is the total number of codes dropped by de-duplication.
func (s CounterSnapshot) Discarded() int64 { return s.DiscardedSeen + s.DiscardedCooldown }

func (c *Counters) snapshot() CounterSnapshot {
	return CounterSnapshot{
		Frames:            c.Frames.Load(),
		NotFound:          c.NotFound.Load(),
		DecodeErrors:      c.DecodeErrors.Load(),
		FrameErrors:       c.FrameErrors.Load(),
		DiscardedSeen:     c.DiscardedSeen.Load(),
		DiscardedCooldown: c.DiscardedCooldown.Load(),
	}
}

func (c *Counters) reset() {
	c.Frames.Store(0)
	c.NotFound.Store(0)
	c.DecodeErrors.Store(0)
	c.FrameErrors.Store(0)
	c.DiscardedSeen.Store(0)
	c.DiscardedCooldown.Store(0)
}
