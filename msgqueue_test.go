package prs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexter0/prs-sub001/internal/platform"
)

func TestMsgQueue_TryRecvNonBlocking(t *testing.T) {
	q := NewMsgQueue()
	_, ok := q.TryRecv()
	assert.False(t, ok)

	q.Send(Message{Type: 1, Payload: "hi"})
	msg, ok := q.TryRecv()
	require.True(t, ok)
	assert.Equal(t, uint32(1), msg.Type)
	assert.Equal(t, "hi", msg.Payload)
}

func TestMsgQueue_TryRecvMatchSkipsNonMatching(t *testing.T) {
	q := NewMsgQueue()
	q.Send(Message{Type: 1})
	q.Send(Message{Type: 2})
	q.Send(Message{Type: 3})

	msg, ok := q.TryRecvMatch(func(m Message) bool { return m.Type == 2 })
	require.True(t, ok)
	assert.Equal(t, uint32(2), msg.Type)

	first, _ := q.TryRecv()
	assert.Equal(t, uint32(1), first.Type)
	third, _ := q.TryRecv()
	assert.Equal(t, uint32(3), third.Type)
}

type recvResult struct {
	msg    Message
	status Status
}

func TestMsgQueue_BlockingRecvWakesOnSend(t *testing.T) {
	sched := NewCooperativeScheduler()
	w := NewWorker(0, sched)
	go w.Run()
	defer func() { w.Stop(); w.WaitStopped() }()

	q := NewMsgQueue()
	resultCh := make(chan recvResult, 1)
	task, err := NewTask("recv", 0, 64*1024, func(t *Task, _ any) {
		msg, status := q.Recv(t, nil, 0, nil)
		resultCh <- recvResult{msg, status}
	}, nil)
	require.NoError(t, err)
	task.Start(sched)

	time.Sleep(30 * time.Millisecond)
	q.Send(Message{Type: 7, Payload: "payload"})

	select {
	case r := <-resultCh:
		assert.Equal(t, OK, r.status)
		assert.Equal(t, uint32(7), r.msg.Type)
	case <-time.After(time.Second):
		t.Fatal("blocked recv never woke on send")
	}
}

func TestMsgQueue_RecvTimesOutWithoutMessage(t *testing.T) {
	sched := NewCooperativeScheduler()
	w := NewWorker(0, sched)
	go w.Run()
	defer func() { w.Stop(); w.WaitStopped() }()

	clock := platform.NewClock(1000)
	tw := NewTimerWheel(clock)
	q := NewMsgQueue()

	resultCh := make(chan recvResult, 1)
	task, err := NewTask("recv", 0, 64*1024, func(t *Task, _ any) {
		msg, status := q.Recv(t, nil, 3, tw)
		resultCh <- recvResult{msg, status}
	}, nil)
	require.NoError(t, err)
	task.Start(sched)

	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 3; i++ {
		clock.Advance()
		tw.Tick(clock.Now())
	}

	select {
	case r := <-resultCh:
		assert.Equal(t, Timeout, r.status)
	case <-time.After(time.Second):
		t.Fatal("recv never timed out")
	}
}
