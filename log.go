package prs

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dexter0/prs-sub001/internal/lockfree"
	"github.com/dexter0/prs-sub001/internal/platform"
)

// LogLine is a single runtime log entry, queued on the MPMC ring from any
// worker and drained by one consumer, per spec §6.
type LogLine struct {
	Tick     uint64
	WorkerID uint32
	Function string
	Message  string
}

// Sink receives drained log lines. WriterSink is the built-in
// implementation; anything else (a structured-logging backend, a test
// recorder) just needs to implement this one method.
type Sink interface {
	Write(LogLine)
}

// RingLog is the runtime's lock-free log buffer: any worker can Printf
// concurrently, a single drain loop (the clock thread, typically) empties
// it into a Sink. If the ring is ever full, the entry is dropped and
// counted rather than applying backpressure to the logging caller; the
// next Drain emits an "OVF: <n>" marker line first, per spec §6.
type RingLog struct {
	ring    *lockfree.Ring[LogLine]
	clock   *platform.Clock
	dropped atomic.Uint64
	sink    Sink
}

// NewRingLog creates a log with the given ring capacity (power of two),
// reading tick numbers from clock and draining into sink.
func NewRingLog(capacity int, clock *platform.Clock, sink Sink) *RingLog {
	return &RingLog{ring: lockfree.NewRing[LogLine](capacity), clock: clock, sink: sink}
}

// Printf queues a formatted log line tagged with the current tick,
// workerID, and function name.
func (l *RingLog) Printf(workerID uint32, function, format string, args ...any) {
	line := LogLine{
		Tick:     l.clock.Now(),
		WorkerID: workerID,
		Function: function,
		Message:  fmt.Sprintf(format, args...),
	}
	if err := l.ring.Push(line); err != nil {
		l.dropped.Add(1)
	}
}

// Drain forwards every currently queued line to the sink, in FIFO order,
// emitting an overflow marker first if any lines were dropped since the
// previous Drain, and reports that dropped count.
func (l *RingLog) Drain() int {
	dropped := int(l.dropped.Swap(0))
	if dropped > 0 && l.sink != nil {
		l.sink.Write(LogLine{Tick: l.clock.Now(), Message: fmt.Sprintf("OVF: %d", dropped)})
	}
	for {
		line, ok := l.ring.Pop()
		if !ok {
			return dropped
		}
		if l.sink != nil {
			l.sink.Write(line)
		}
	}
}

// WriterSink is the built-in Sink, writing one line per entry to an
// io.Writer as "[<tick>] worker=<id> <function>: <message>", the tick in
// plain unpadded decimal. An overflow marker is written as its own
// "OVF: <n>" line, not as a prefix of the next entry.
type WriterSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterSink creates a sink writing to out.
func NewWriterSink(out io.Writer) *WriterSink { return &WriterSink{out: out} }

func (s *WriterSink) Write(l LogLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.HasPrefix(l.Message, "OVF:") {
		fmt.Fprintf(s.out, "%s\n", l.Message)
		return
	}
	fmt.Fprintf(s.out, "[%d] worker=%d %s: %s\n", l.Tick, l.WorkerID, l.Function, l.Message)
}
