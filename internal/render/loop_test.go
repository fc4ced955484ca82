package render

import (
	"testing"

	"github.com/forPelevin/clipcast/internal/ports/portstest"
)

func TestLoop_RedrawsUntilStopped(t *testing.T) {
	sched := &portstest.Scheduler{}
	draws := 0
	l := StartLoop(sched, func() { draws++ })

	for i := 0; i < 5; i++ {
		sched.Fire()
	}
	if draws != 5 {
		t.Fatalf("draws = %d, want 5", draws)
	}

	l.Stop()
	if l.Running() {
		t.Fatalf("loop still running after Stop")
	}
	if sched.Pending() != 0 {
		t.Fatalf("stop must cancel the outstanding request")
	}
	sched.Fire()
	if draws != 5 {
		t.Fatalf("drew after stop: %d", draws)
	}
	l.Stop()
}

func TestLoop_StopFromInsideDraw(t *testing.T) {
	sched := &portstest.Scheduler{}
	var l *Loop
	draws := 0
	l = StartLoop(sched, func() {
		draws++
		l.Stop()
	})
	sched.Fire()
	sched.Fire()
	if draws != 1 || sched.Pending() != 0 {
		t.Fatalf("draws=%d pending=%d", draws, sched.Pending())
	}
}
