package ioengine

import (
	"strconv"
	"sync"

	"github.com/rotorcore/corert/internal/metrics"
)

// RequestPool is a fixed-capacity slab of Request slots, tracked on a
// doubly-linked free list and a doubly-linked live list, both protected by
// one mutex. Every request is on exactly one list at all times.
type RequestPool struct {
	mu       sync.Mutex
	storage  []Request
	capacity int

	freeHead *Request
	liveHead *Request
	liveTail *Request

	live int
}

// NewRequestPool preallocates capacity request slots.
func NewRequestPool(capacity int) *RequestPool {
	p := &RequestPool{
		storage:  make([]Request, capacity),
		capacity: capacity,
	}
	for i := range p.storage {
		p.storage[i].pool = p
		p.storage[i].state = StateFree
		p.pushFree(&p.storage[i])
	}
	return p
}

func (p *RequestPool) pushFree(r *Request) {
	r.next = p.freeHead
	r.prev = nil
	if p.freeHead != nil {
		p.freeHead.prev = r
	}
	p.freeHead = r
}

func (p *RequestPool) popFree() *Request {
	r := p.freeHead
	if r == nil {
		return nil
	}
	p.freeHead = r.next
	if p.freeHead != nil {
		p.freeHead.prev = nil
	}
	r.next = nil
	return r
}

func (p *RequestPool) pushLive(r *Request) {
	r.prev = p.liveTail
	r.next = nil
	if p.liveTail != nil {
		p.liveTail.next = r
	} else {
		p.liveHead = r
	}
	p.liveTail = r
	p.live++
}

func (p *RequestPool) unlinkLive(r *Request) {
	if r.prev != nil {
		r.prev.next = r.next
	} else {
		p.liveHead = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	} else {
		p.liveTail = r.prev
	}
	r.prev, r.next = nil, nil
	p.live--
}

// Allocate pops a slot from the free list, links it onto the live list, and
// returns it with state Chained. It returns nil if the pool is exhausted.
func (p *RequestPool) Allocate() *Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.popFree()
	if r == nil {
		metrics.Active().RecordPoolExhausted("io_request")
		return nil
	}
	r.state = Chained
	p.pushLive(r)
	metrics.Active().SetIORequestsLive(strconv.Itoa(p.capacity), float64(p.live))
	return r
}

// Return unlinks req from the live list and pushes it back onto the free
// list. req must belong to this pool.
func (p *RequestPool) Return(req *Request) {
	if req.pool != p {
		panic("ioengine.RequestPool.Return: request does not belong to this pool")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlinkLive(req)
	req.state = StateFree
	p.pushFree(req)
	metrics.Active().SetIORequestsLive(strconv.Itoa(p.capacity), float64(p.live))
}

// Live reports how many requests are currently allocated.
func (p *RequestPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Capacity returns the pool's fixed size.
func (p *RequestPool) Capacity() int { return p.capacity }
