// Package ioengine implements the asynchronous I/O engine: a fixed-capacity
// request pool and a completion-port-style worker fleet driving file
// OPEN/READ/WRITE/FLUSH/CLOSE requests through a CHAINED -> SUBMITTED ->
// LAUNCHED -> COMPLETED state machine, with chainable completion callbacks.
package ioengine

import (
	"os"
	"time"
)

// Type identifies the operation an I/O request performs.
type Type uint8

const (
	NOOP Type = iota
	OPEN
	READ
	WRITE
	FLUSH
	CLOSE
)

func (t Type) String() string {
	switch t {
	case NOOP:
		return "NOOP"
	case OPEN:
		return "OPEN"
	case READ:
		return "READ"
	case WRITE:
		return "WRITE"
	case FLUSH:
		return "FLUSH"
	case CLOSE:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// State is a request's position in its lifecycle.
type State uint8

const (
	StateFree State = iota
	Chained
	Submitted
	Launched
	Completed
)

// HintFlags steer OPEN's access/share/create mapping and preallocation.
type HintFlags uint32

const (
	HintWrite HintFlags = 1 << iota
	HintCreate
	HintTruncate
	HintSequential
	HintSkipSyncNotify
	HintPreallocate
)

// Result is what a request's execution produced.
type Result struct {
	Success           bool
	BytesTransferred  int
	FileSize          int64
	SectorSize        int
	EOF               bool
	Err               error
}

// Profile is handed to completion callbacks: queue delay, execution time,
// and which OS thread (worker index, in this implementation) ran it.
type Profile struct {
	QueueDelay time.Duration
	ExecTime   time.Duration
	ThreadID   int
}

// Callback is a request's completion handler. It may return a chained
// request, which bypasses the completion port and runs immediately on the
// same worker.
type Callback func(result Result, userContext interface{}, profile Profile) *Request

// Request is one fixed-size slot in a RequestPool.
type Request struct {
	state State
	typ   Type

	file       *os.File
	path       string
	buf        []byte
	amount     int
	baseOffset int64
	fileOffset int64
	hints      HintFlags

	userContext interface{}
	onComplete  Callback

	submitTS, launchTS, finishTS time.Time

	pool       *RequestPool
	prev, next *Request
}

// Reset reinitializes req for reuse as typ, discarding any previous file
// handle reference (the caller is responsible for closing it first via a
// CLOSE request).
func (r *Request) Reset(typ Type, path string, buf []byte, amount int, hints HintFlags) {
	r.typ = typ
	r.file = nil
	r.path = path
	r.buf = buf
	r.amount = amount
	r.hints = hints
	r.baseOffset = 0
	r.fileOffset = 0
	r.userContext = nil
	r.onComplete = nil
	r.state = Chained
}

// WithFile carries an already-open file handle forward into a chained
// request (e.g. OPEN's callback building a READ against the same file).
func (r *Request) WithFile(f *os.File) *Request {
	r.file = f
	return r
}

// WithOffsets sets the absolute file position as base+file offset, matching
// the wire model's split between a request-pool-relative base and a
// caller-supplied file offset.
func (r *Request) WithOffsets(base, file int64) *Request {
	r.baseOffset = base
	r.fileOffset = file
	return r
}

// WithCallback attaches the completion callback and opaque user context.
func (r *Request) WithCallback(cb Callback, userContext interface{}) *Request {
	r.onComplete = cb
	r.userContext = userContext
	return r
}

// Type, State, File, and Path expose read-only views for callbacks that
// need to inspect the request they were invoked for.
func (r *Request) Type() Type        { return r.typ }
func (r *Request) State() State      { return r.state }
func (r *Request) File() *os.File    { return r.file }
func (r *Request) Path() string      { return r.path }
func (r *Request) UserContext() any  { return r.userContext }
