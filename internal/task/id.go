// Package task implements the work-stealing task graph: a fixed-capacity
// task pool per owning thread, a Chase-Lev work-stealing deque, a
// multi-pool scheduler with worker threads, and a fence for blocking an OS
// thread on task-graph progress.
package task

import "fmt"

// ID identifies a task globally by (pool index, task index), packed into
// 32 bits: [valid:1 | type:1 (internal=1, external=0) | pool_index:12 |
// task_index:16].
type ID uint32

const (
	validBit = uint32(1) << 31
	typeBit  = uint32(1) << 30

	poolIndexShift = 16
	poolIndexBits  = 12
	poolIndexMask  = (uint32(1) << poolIndexBits) - 1

	taskIndexBits = 16
	taskIndexMask = (uint32(1) << taskIndexBits) - 1

	// MaxPools is the number of pool indices an ID can address
	// (0 through MaxPools-1).
	MaxPools = int(poolIndexMask) + 1
	// MaxTasksPerPool is the number of task indices an ID can address
	// (0 through MaxTasksPerPool-1).
	MaxTasksPerPool = int(taskIndexMask) + 1
)

// Invalid is the reserved sentinel ID (valid=0).
const Invalid ID = 0

func newID(internal bool, poolIndex, taskIndex int) ID {
	v := validBit
	if internal {
		v |= typeBit
	}
	v |= (uint32(poolIndex) & poolIndexMask) << poolIndexShift
	v |= uint32(taskIndex) & taskIndexMask
	return ID(v)
}

// Valid reports whether id is not the Invalid sentinel.
func (id ID) Valid() bool { return uint32(id)&validBit != 0 }

// Internal reports whether id addresses an internal (queue-scheduled) task
// as opposed to an external task.
func (id ID) Internal() bool { return uint32(id)&typeBit != 0 }

// PoolIndex returns the index of the task pool this ID was allocated from.
func (id ID) PoolIndex() int { return int((uint32(id) >> poolIndexShift) & poolIndexMask) }

// TaskIndex returns the slot index within the owning pool.
func (id ID) TaskIndex() int { return int(uint32(id) & taskIndexMask) }

func (id ID) String() string {
	if !id.Valid() {
		return "task.Invalid"
	}
	kind := "ext"
	if id.Internal() {
		kind = "int"
	}
	return fmt.Sprintf("task(%s,pool=%d,idx=%d)", kind, id.PoolIndex(), id.TaskIndex())
}
