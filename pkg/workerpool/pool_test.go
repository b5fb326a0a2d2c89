package workerpool_test

import (
	"sync/atomic"
	"testing"

	"github.com/mmtext/booking-engine/pkg/workerpool"
)

func TestPool_ExecutesAllJobs(t *testing.T) {
	const jobs = 500
	p := workerpool.New(10, 100)
	p.Start()

	var counter int64
	for i := 0; i < jobs; i++ {
		p.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
	}
	p.Stop()

	if counter != jobs {
		t.Errorf("expected %d jobs executed, got %d", jobs, counter)
	}
}

func TestPool_ZeroWorkersFallsBackToOne(t *testing.T) {
	p := workerpool.New(0, 0)
	p.Start()
	var ran int64
	p.Submit(func() { atomic.AddInt64(&ran, 1) })
	p.Stop()
	if ran != 1 {
		t.Errorf("expected job to run, ran=%d", ran)
	}
}

func TestPool_TrySubmitRejectsWhenFull(t *testing.T) {
	p := workerpool.New(1, 1)
	// Workers never started, so the single buffer slot fills up
	if !p.TrySubmit(func() {}) {
		t.Fatal("first TrySubmit should be accepted")
	}
	if p.TrySubmit(func() {}) {
		t.Error("TrySubmit on a full buffer should be rejected")
	}
	if depth := p.QueueDepth(); depth != 1 {
		t.Errorf("QueueDepth() = %d, want 1", depth)
	}
}

func TestPool_StopIsIdempotent(t *testing.T) {
	p := workerpool.New(2, 4)
	p.Start()
	p.Stop()
	p.Stop()
}
