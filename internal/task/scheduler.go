package task

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rotorcore/corert/internal/corerr"
	"github.com/rotorcore/corert/internal/ioengine"
	"github.com/rotorcore/corert/internal/logging"
	"github.com/rotorcore/corert/internal/memory"
	"github.com/rotorcore/corert/internal/metrics"
	"github.com/rotorcore/corert/internal/telemetry"
)

// PoolTypeConfig describes one class of task pool: how many instances of it
// exist, their shape, and what they may be used for.
type PoolTypeConfig struct {
	PoolConfig
	Count int
}

// SchedulerConfig parameterizes scheduler construction. Exactly one pool
// type must carry UsageWorker; the scheduler spawns one worker goroutine
// per instance of that type, bound 1:1.
type SchedulerConfig struct {
	PoolTypes       []PoolTypeConfig
	GlobalArenaSize int
	IO              *ioengine.ThreadPool
}

type poolTypeState struct {
	cfg  PoolTypeConfig
	mu   sync.Mutex
	free []*Pool
	all  []*Pool
}

// Scheduler owns every task pool, the shared global arena, and the worker
// fleet that drains WORKER-usage pools via steal notifications.
type Scheduler struct {
	poolTypes   []*poolTypeState
	allPools    []*Pool
	globalArena *memory.Arena
	io          *ioengine.ThreadPool

	workers    []*worker
	shutdownCh chan struct{}
	wg         sync.WaitGroup

	rrWorker atomic.Uint32
	rrVictim atomic.Uint32
}

// NewScheduler builds the pool fleet and starts one goroutine per worker
// pool. Callers must eventually call Shutdown.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	workerTypes := 0
	for _, pt := range cfg.PoolTypes {
		if pt.Usage.has(UsageWorker) {
			workerTypes++
		}
	}
	if workerTypes != 1 {
		return nil, fmt.Errorf("task.NewScheduler: exactly one pool type must carry UsageWorker, got %d", workerTypes)
	}

	s := &Scheduler{
		globalArena: memory.NewArena(make([]byte, maxInt(cfg.GlobalArenaSize, 1))),
		io:          cfg.IO,
		shutdownCh:  make(chan struct{}),
	}

	nextIdx := 0
	for typeIdx, pt := range cfg.PoolTypes {
		pts := &poolTypeState{cfg: pt}
		for i := 0; i < pt.Count; i++ {
			if nextIdx >= MaxPools {
				return nil, fmt.Errorf("task.NewScheduler: pool count exceeds the %d-pool addressing limit", MaxPools)
			}
			p := newPool(nextIdx, typeIdx, pt.PoolConfig, s)
			nextIdx++
			pts.all = append(pts.all, p)
			pts.free = append(pts.free, p)
			s.allPools = append(s.allPools, p)
		}
		s.poolTypes = append(s.poolTypes, pts)
	}

	for typeIdx, pts := range s.poolTypes {
		if !pts.cfg.Usage.has(UsageWorker) {
			continue
		}
		for wi, p := range pts.all {
			p.BindOwner(int64(wi))
			w := &worker{id: wi, pool: p, notify: make(chan stealNotice, 64), sched: s}
			s.workers = append(s.workers, w)
		}
		pts.free = nil
		_ = typeIdx
	}

	for _, w := range s.workers {
		s.wg.Add(1)
		go w.run(&s.wg)
	}
	logging.Op().Info("task scheduler started", "pools", len(s.allPools), "workers", len(s.workers))
	return s, nil
}

// Shutdown signals every worker to stop after it finishes its current
// notification cycle, waits for them to exit, and then runs every task
// still queued in any pool (and any task those make ready) on the calling
// goroutine. Tasks still waiting on dependencies that never complete are
// not run.
func (s *Scheduler) Shutdown() {
	close(s.shutdownCh)
	s.wg.Wait()
	for ran := true; ran; {
		ran = false
		for _, p := range s.allPools {
			for id, ok := p.queue.Steal(); ok; id, ok = p.queue.Steal() {
				s.runTask(p, id)
				ran = true
			}
		}
	}
}

func (s *Scheduler) recordFor(id ID) *Record {
	return s.allPools[id.PoolIndex()].record(id.TaskIndex())
}

func (s *Scheduler) poolByIndex(idx int) *Pool { return s.allPools[idx] }

// AllocateTaskPool claims a free pool of the given type for threadID's
// exclusive use until ReturnTaskPool.
func (s *Scheduler) AllocateTaskPool(typeID int, threadID int64) (*Pool, error) {
	const op = "task.Scheduler.AllocateTaskPool"
	if typeID < 0 || typeID >= len(s.poolTypes) {
		return nil, corerr.New(corerr.InvalidThread, op, "unknown pool type")
	}
	pts := s.poolTypes[typeID]
	pts.mu.Lock()
	defer pts.mu.Unlock()
	n := len(pts.free)
	if n == 0 {
		return nil, corerr.New(corerr.PoolExhausted, op, "no free pools of this type")
	}
	p := pts.free[n-1]
	pts.free = pts.free[:n-1]
	p.BindOwner(threadID)
	return p, nil
}

// ReturnTaskPool restores an idle pool to its type's free list. Callers
// must ensure the pool holds no live tasks before returning it.
func (s *Scheduler) ReturnTaskPool(p *Pool) {
	for i := range p.status {
		p.status[i].Store(slotFree)
	}
	p.nextIndex = 0
	pts := s.poolTypes[p.typeID]
	pts.mu.Lock()
	pts.free = append(pts.free, p)
	pts.mu.Unlock()
}

// DefineTask reserves a slot in pool and wires up deps, without running
// anything. The calling thread must own pool. Callers must eventually call
// FinishTaskDefinition, optionally after attaching children via
// DefineChildTask.
func (s *Scheduler) DefineTask(pool *Pool, threadID int64, deps []ID, entry Func, args []byte) (ID, error) {
	return s.defineInternal(pool, threadID, Invalid, deps, entry, args, true)
}

// DefineChildTask is DefineTask, but increments parent's work_count first so
// parent cannot complete before this task does.
func (s *Scheduler) DefineChildTask(pool *Pool, threadID int64, parent ID, deps []ID, entry Func, args []byte) (ID, error) {
	const op = "task.Scheduler.DefineChildTask"
	if !s.validParent(parent) {
		return Invalid, corerr.New(corerr.InvalidParent, op, "parent task id does not address a live task")
	}
	prec := s.recordFor(parent)
	prec.workCount.Add(1)
	id, err := s.defineInternal(pool, threadID, parent, deps, entry, args, true)
	if err != nil {
		prec.workCount.Add(-1)
	}
	return id, err
}

// SpawnTask is DefineTask immediately followed by FinishTaskDefinition, for
// leaf tasks that never attach children after creation.
func (s *Scheduler) SpawnTask(pool *Pool, threadID int64, deps []ID, entry Func, args []byte) (ID, error) {
	id, err := s.DefineTask(pool, threadID, deps, entry, args)
	if err != nil {
		return id, err
	}
	s.FinishTaskDefinition(id)
	return id, nil
}

// CreateExternalTask defines a task that is never queued to a worker. Its
// entry, if non-nil, runs inline (on whichever thread satisfies its last
// dependency) the instant it becomes ready, but the task itself only
// completes when external code calls CompleteTask with its ID.
func (s *Scheduler) CreateExternalTask(pool *Pool, threadID int64, deps []ID, entry Func, args []byte) (ID, error) {
	id, err := s.defineInternal(pool, threadID, Invalid, deps, entry, args, false)
	if err != nil {
		return id, err
	}
	s.CompleteTask(id)
	return id, nil
}

// CreateExternalChildTask is CreateExternalTask with parent accounting.
func (s *Scheduler) CreateExternalChildTask(pool *Pool, threadID int64, parent ID, deps []ID, entry Func, args []byte) (ID, error) {
	const op = "task.Scheduler.CreateExternalChildTask"
	if !s.validParent(parent) {
		return Invalid, corerr.New(corerr.InvalidParent, op, "parent task id does not address a live task")
	}
	prec := s.recordFor(parent)
	prec.workCount.Add(1)
	id, err := s.defineInternal(pool, threadID, parent, deps, entry, args, false)
	if err != nil {
		prec.workCount.Add(-1)
		return id, err
	}
	s.CompleteTask(id)
	return id, nil
}

func (s *Scheduler) validParent(parent ID) bool {
	if !parent.Valid() {
		return false
	}
	pp := s.poolByIndex(parent.PoolIndex())
	return pp.status[parent.TaskIndex()].Load() == slotUsed
}

func (s *Scheduler) defineInternal(pool *Pool, threadID int64, parent ID, deps []ID, entry Func, args []byte, internal bool) (ID, error) {
	const op = "task.Scheduler.DefineTask"
	if pool.ownerTID != threadID {
		pool.setLastError(corerr.InvalidThread)
		return Invalid, corerr.New(corerr.InvalidThread, op, "calling thread is not the pool owner")
	}
	if len(args) > MaxArgBytes {
		pool.setLastError(corerr.DataLimit)
		return Invalid, corerr.New(corerr.DataLimit, op, "argument payload exceeds the inline limit")
	}
	slot, ok := pool.allocSlot()
	if !ok {
		pool.setLastError(corerr.TaskLimit)
		metrics.Active().RecordPoolExhausted("task")
		return Invalid, corerr.New(corerr.TaskLimit, op, "no free slots in pool")
	}
	id := newID(internal, pool.index, slot)
	rec := pool.record(slot)
	rec.reset(parent, entry, args, len(deps))
	// Hold one extra wait unit while the dependencies are wired, so a
	// dependency completing mid-loop cannot make the task ready; only the
	// single transition to zero below or in CompleteTask readies it.
	rec.waitCount.Add(-1)

	for _, dep := range deps {
		if !dep.Valid() {
			rec.waitCount.Add(1)
			continue
		}
		depPool := s.poolByIndex(dep.PoolIndex())
		depRec := depPool.record(dep.TaskIndex())
		ok, sealed := depRec.appendPermit(id)
		if sealed {
			rec.waitCount.Add(1)
			continue
		}
		if !ok {
			pool.releaseSlot(slot)
			pool.setLastError(corerr.PermitLimit)
			return Invalid, corerr.New(corerr.PermitLimit, op, "a dependency's permit list is full")
		}
	}

	if rec.waitCount.Add(1) == 0 {
		s.makeReady(pool, id)
	}
	return id, nil
}

// FinishTaskDefinition releases the "still being defined" unit of work_count
// that DefineTask/DefineChildTask reserved. It is one of the two decrements
// that must both occur before a task completes; the other is the task body
// running to completion (for internal tasks, automatic; for external tasks,
// an explicit CompleteTask call).
func (s *Scheduler) FinishTaskDefinition(id ID) {
	s.CompleteTask(id)
}

func (s *Scheduler) makeReady(pool *Pool, id ID) {
	if id.Internal() {
		pool.queue.Push(id)
		if !pool.usage.has(UsageExecute) {
			s.PublishTasks(pool, 1)
		}
		return
	}
	rec := pool.record(id.TaskIndex())
	if rec.main != nil {
		rec.main(s.envFor(pool), rec.Args())
	}
}

func (s *Scheduler) envFor(pool *Pool) *Env {
	return &Env{Pool: pool, GlobalArena: s.globalArena, Scheduler: s, IO: s.io}
}

// CompleteTask decrements id's work_count by one. It is called twice over a
// task's own life (once via FinishTaskDefinition, once when the body
// finishes running — automatically for internal tasks, explicitly by
// application code for external tasks), plus once for each child, whose
// completion calls it on the parent. The call that reaches zero cascades: every permitted dependent has its wait_count incremented, newly
// unblocked dependents are made ready, the parent (if any) is completed
// recursively, and the slot is freed.
func (s *Scheduler) CompleteTask(id ID) int {
	if !id.Valid() {
		return 0
	}
	ownerPool := s.poolByIndex(id.PoolIndex())
	rec := ownerPool.record(id.TaskIndex())
	if rec.workCount.Add(-1) != 0 {
		return 0
	}
	metrics.Active().RecordTaskCompleted(strconv.Itoa(ownerPool.index))

	readyInPool := 0
	for _, permit := range rec.sealPermits() {
		if !permit.Valid() {
			continue
		}
		permPool := s.poolByIndex(permit.PoolIndex())
		permRec := permPool.record(permit.TaskIndex())
		if permRec.waitCount.Add(1) == 0 {
			s.makeReady(permPool, permit)
			if permPool == ownerPool {
				readyInPool++
			}
		}
	}

	parent := rec.ParentID()
	ownerPool.releaseSlot(id.TaskIndex())
	if parent.Valid() {
		s.CompleteTask(parent)
	}
	return readyInPool
}

// PublishTasks posts n steal notifications, round-robin across every
// worker, carrying pool as the completion key. Call this after pushing
// work onto a pool that has no dedicated worker of its own (UsageExecute
// unset), so idle workers know where to steal from.
func (s *Scheduler) PublishTasks(pool *Pool, n int) {
	if len(s.workers) == 0 {
		return
	}
	for i := 0; i < n; i++ {
		idx := int(s.rrWorker.Add(1)-1) % len(s.workers)
		select {
		case s.workers[idx].notify <- stealNotice{victimIdx: pool.index}:
		default:
			// The worker's notification channel is full; it is already
			// busy churning through work and will eventually steal from
			// every pool during its own rotation.
		}
	}
}

// WaitForTask blocks the calling goroutine, without ever entering an OS
// wait, until target has fully completed. While waiting it drains its own
// pool's queue and steals from others, so the wait itself makes progress on
// the task graph.
func (s *Scheduler) WaitForTask(pool *Pool, target ID) {
	if !target.Valid() {
		return
	}
	trec := s.recordFor(target)
	for trec.workCount.Load() != 0 {
		id, ok := pool.queue.Take()
		if !ok {
			victimIdx := int(s.rrVictim.Add(1)-1) % len(s.allPools)
			id, ok = s.allPools[victimIdx].queue.Steal()
		}
		if !ok {
			continue
		}
		s.runTask(pool, id)
	}
}

func (s *Scheduler) runTask(pool *Pool, id ID) {
	pool.localArena.Reset()
	rec := s.recordFor(id)
	if rec.main != nil {
		if telemetry.Enabled() {
			_, span := telemetry.StartTaskSpan(context.Background(), pool.index, id.TaskIndex())
			rec.main(s.envFor(pool), rec.Args())
			telemetry.SetSpanOK(span)
			span.End()
		} else {
			rec.main(s.envFor(pool), rec.Args())
		}
	}
	s.CompleteTask(id)
}
