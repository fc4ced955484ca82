package render

import "github.com/forPelevin/clipcast/internal/ports"

// Loop is a running redraw task: each refresh callback draws once and asks
// for the next refresh. Stop cancels the outstanding request, so a stopped
// loop never draws again.
type Loop struct {
	sched   ports.FrameScheduler
	draw    func()
	cancel  func()
	running bool
}

func StartLoop(sched ports.FrameScheduler, draw func()) *Loop {
	l := &Loop{sched: sched, draw: draw, running: true}
	l.schedule()
	return l
}

func (l *Loop) Running() bool { return l != nil && l.running }

func (l *Loop) Stop() {
	if l == nil || !l.running {
		return
	}
	l.running = false
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Loop) schedule() {
	l.cancel = l.sched.RequestFrame(l.tick)
}

func (l *Loop) tick() {
	if !l.running {
		return
	}
	l.draw()
	if l.running {
		l.schedule()
	}
}
