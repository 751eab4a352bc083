package task

import (
	"strconv"
	"sync"

	"github.com/rotorcore/corert/internal/metrics"
)

// stealNotice is the completion-port substitute: a notification that a
// particular pool (the "completion key") has work available to steal.
type stealNotice struct {
	victimIdx int
}

// worker is the goroutine bound 1:1 to a WORKER-usage pool. It sits idle on
// its notification channel, attempts to steal from the named victim, falls
// back to rotating through every other pool, and then runs whatever it
// found to exhaustion before going idle again.
type worker struct {
	id     int
	pool   *Pool
	notify chan stealNotice
	sched  *Scheduler
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	s := w.sched
	for {
		var notice stealNotice
		select {
		case notice = <-w.notify:
		case <-s.shutdownCh:
			return
		}

		id, ok := w.steal(notice.victimIdx)
		if !ok {
			continue
		}
		for ok {
			s.runTask(w.pool, id)
			id, ok = w.pool.queue.Take()
		}
	}
}

func (w *worker) steal(victimIdx int) (ID, bool) {
	label := strconv.Itoa(w.id)
	victim := w.sched.poolByIndex(victimIdx)
	for attempt := 0; attempt < 4; attempt++ {
		id, ok := victim.queue.Steal()
		metrics.Active().RecordStealAttempt(label, ok)
		if ok {
			return id, true
		}
	}
	for _, p := range w.sched.allPools {
		if p == w.pool {
			continue
		}
		id, ok := p.queue.Steal()
		metrics.Active().RecordStealAttempt(label, ok)
		if ok {
			return id, true
		}
	}
	return Invalid, false
}
