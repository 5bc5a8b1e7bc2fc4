package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Sink receives scan lifecycle events. Implementations must be safe for
// concurrent use; workers emit from their own goroutines.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	f(e)
}

type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// ChannelSink forwards events to a channel without ever blocking. Events
// that do not fit in the buffer are dropped.
type ChannelSink struct {
	ch chan<- Event
}

func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Emit(e Event) {
	if s == nil || s.ch == nil {
		return
	}
	select {
	case s.ch <- stamp(e):
	default:
	}
}

// PlainSink prints one line per run and file event for non-interactive
// terminals and CI logs.
type PlainSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPlainSink(w io.Writer) *PlainSink {
	return &PlainSink{w: w}
}

func (s *PlainSink) Emit(e Event) {
	if s == nil || s.w == nil {
		return
	}
	line := plainLine(stamp(e))
	if line == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line+"\n")
}

func stamp(e Event) Event {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}

func plainLine(e Event) string {
	var b strings.Builder
	b.WriteString(e.At.Format("[15:04:05] "))
	switch e.Type {
	case EventRunStarted:
		fmt.Fprintf(&b, "scanning %d files (run %s)", e.FileCount, e.RunID)
	case EventRunWarning:
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			msg = strings.TrimSpace(e.Error)
		}
		b.WriteString("warning: " + msg)
	case EventFileFinished:
		fmt.Fprintf(&b, "%-8s %s (%s, %dms)", e.Status, e.Path, plural(e.FindingCount, "finding"), e.DurationMS)
	case EventRunFinished:
		fmt.Fprintf(&b, "run %s %s: %s, %s in %dms", e.RunID, e.Status, plural(e.FileCount, "file"), plural(e.FindingCount, "finding"), e.DurationMS)
	default:
		return ""
	}
	if e.Type != EventRunWarning {
		if msg := strings.TrimSpace(e.Error); msg != "" {
			b.WriteString(": " + msg)
		}
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}
