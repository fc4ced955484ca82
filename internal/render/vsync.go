package render

import (
	"sync"
	"time"
)

// VSync is a FrameScheduler that fires pending requests at a fixed display
// rate. Requests run on the event loop through post.
type VSync struct {
	post     func(func())
	interval time.Duration

	mu      sync.Mutex
	pending []*frameRequest
	stop    chan struct{}
	once    sync.Once
}

type frameRequest struct {
	fn       func()
	canceled bool // only touched on the event loop
}

func NewVSync(post func(func()), hz int) *VSync {
	if hz <= 0 {
		hz = 60
	}
	v := &VSync{
		post:     post,
		interval: time.Second / time.Duration(hz),
		stop:     make(chan struct{}),
	}
	go v.run()
	return v
}

func (v *VSync) RequestFrame(fn func()) func() {
	req := &frameRequest{fn: fn}
	v.mu.Lock()
	v.pending = append(v.pending, req)
	v.mu.Unlock()
	return func() { req.canceled = true }
}

func (v *VSync) Close() {
	v.once.Do(func() { close(v.stop) })
}

func (v *VSync) run() {
	t := time.NewTicker(v.interval)
	defer t.Stop()
	for {
		select {
		case <-v.stop:
			return
		case <-t.C:
			v.mu.Lock()
			batch := v.pending
			v.pending = nil
			v.mu.Unlock()
			if len(batch) == 0 {
				continue
			}
			v.post(func() {
				for _, req := range batch {
					if !req.canceled {
						req.fn()
					}
				}
			})
		}
	}
}
