package prs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexter0/prs-sub001/internal/platform"
)

type recordingSink struct{ lines []LogLine }

func (s *recordingSink) Write(l LogLine) { s.lines = append(s.lines, l) }

func TestRingLog_DrainDeliversInOrder(t *testing.T) {
	clock := platform.NewClock(1000)
	sink := &recordingSink{}
	l := NewRingLog(8, clock, sink)

	l.Printf(1, "worker.run", "task %d started", 1)
	l.Printf(1, "worker.run", "task %d started", 2)
	l.Drain()

	require.Len(t, sink.lines, 2)
	assert.Equal(t, "task 1 started", sink.lines[0].Message)
	assert.Equal(t, "task 2 started", sink.lines[1].Message)
}

func TestRingLog_OverflowEmitsMarkerFirst(t *testing.T) {
	clock := platform.NewClock(1000)
	sink := &recordingSink{}
	l := NewRingLog(2, clock, sink)

	for i := 0; i < 5; i++ {
		l.Printf(0, "f", "line %d", i)
	}
	l.Drain()

	require.NotEmpty(t, sink.lines)
	assert.True(t, strings.HasPrefix(sink.lines[0].Message, "OVF:"))
}

func TestWriterSink_FormatsLine(t *testing.T) {
	var sb strings.Builder
	s := NewWriterSink(&sb)
	s.Write(LogLine{Tick: 42, WorkerID: 3, Function: "scheduler.tick", Message: "hello"})
	assert.Equal(t, "[42] worker=3 scheduler.tick: hello\n", sb.String())
}
