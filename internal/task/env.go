package task

import (
	"github.com/rotorcore/corert/internal/ioengine"
	"github.com/rotorcore/corert/internal/memory"
)

// Env is the thread-local execution context delivered to every task body.
type Env struct {
	Pool        *Pool
	GlobalArena *memory.Arena
	Scheduler   *Scheduler
	IO          *ioengine.ThreadPool
	UserContext interface{}
}
