package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent events of a batch in memory, so a failed
// unit can be explained after the fact without streaming everything.
type RingTracer struct {
	mu    sync.Mutex
	buf   []Event
	next  int // slot the next event goes to
	count int // events held, at most len(buf)
	level Level
}

// NewRingTracer keeps up to capacity events; DefaultRingSize when <= 0.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &RingTracer{buf: make([]Event, capacity), level: level}
}

func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) && ev.Kind != KindHeartbeat {
		return
	}
	stored := *ev
	stored.Seq = NextSeq()

	t.mu.Lock()
	t.buf[t.next] = stored
	t.next = (t.next + 1) % len(t.buf)
	if t.count < len(t.buf) {
		t.count++
	}
	t.mu.Unlock()
}

// Snapshot copies every held event, oldest first.
func (t *RingTracer) Snapshot() []Event {
	return t.Tail(0)
}

// Tail copies the newest n held events, oldest first. n <= 0 means all.
func (t *RingTracer) Tail(n int) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || n > t.count {
		n = t.count
	}
	out := make([]Event, n)
	first := (t.next - n + len(t.buf)) % len(t.buf)
	for i := range out {
		out[i] = t.buf[(first+i)%len(t.buf)]
	}
	return out
}

// Dump writes the newest n events (all when n <= 0) to w.
func (t *RingTracer) Dump(w io.Writer, format Format, n int) error {
	events := t.Tail(n)
	for i := range events {
		if _, err := w.Write(FormatEvent(&events[i], format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error { return nil }

func (t *RingTracer) Close() error { return nil }

func (t *RingTracer) Level() Level { return t.level }

func (t *RingTracer) Enabled() bool { return t.level > LevelOff }
