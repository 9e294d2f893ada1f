package docsession

import (
	"sync"
	"time"
)

// DefaultSaveDelay 输入停顿多久之后落库
const DefaultSaveDelay = 900 * time.Millisecond

// Saver 防抖保存。每次 Schedule 重置计时，只有最后一次会触发；
// 代数计数保证已取消/已被覆盖的计时器醒来后什么都不做。
type Saver struct {
	mu    sync.Mutex
	delay time.Duration
	gen   uint64
	timer *time.Timer
}

func NewSaver(delay time.Duration) *Saver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &Saver{delay: delay}
}

func (s *Saver) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		stale := gen != s.gen
		s.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

// Cancel 丢弃未触发的保存
func (s *Saver) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
