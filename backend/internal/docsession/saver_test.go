package docsession

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSaver_CoalescesBursts(t *testing.T) {
	s := NewSaver(30 * time.Millisecond)
	var fired int32

	// 连续调度多次，只有最后一次应该触发
	for i := 0; i < 5; i++ {
		s.Schedule(func() { atomic.AddInt32(&fired, 1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("fired = %d, want 1", got)
	}
}

func TestSaver_CancelDropsPending(t *testing.T) {
	s := NewSaver(30 * time.Millisecond)
	var fired int32

	s.Schedule(func() { atomic.AddInt32(&fired, 1) })
	s.Cancel()
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Fatalf("fired = %d, want 0", got)
	}
}

func TestSaver_ScheduleAfterCancel(t *testing.T) {
	s := NewSaver(20 * time.Millisecond)
	var fired int32

	s.Schedule(func() { atomic.AddInt32(&fired, 1) })
	s.Cancel()
	s.Schedule(func() { atomic.AddInt32(&fired, 1) })
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("fired = %d, want 1", got)
	}
}
