package ioengine

import (
	"context"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/rotorcore/corert/internal/corerr"
	"github.com/rotorcore/corert/internal/logging"
	"github.com/rotorcore/corert/internal/metrics"
	"github.com/rotorcore/corert/internal/telemetry"
)

// defaultSectorSize is reported by OPEN when no sector size has been set
// with ThreadPool.SetDefaultSectorSize and stat does not report a block
// size (or fails).
const defaultSectorSize = 4096

// ThreadPool is a fleet of worker goroutines sharing one completion
// channel (this implementation's stand-in for an OS completion port) and
// one shutdown signal.
type ThreadPool struct {
	port     chan *Request
	shutdown chan struct{}
	wg       sync.WaitGroup

	sectorSizeOverride int
}

// NewThreadPool starts workers goroutines draining a shared completion
// channel.
func NewThreadPool(workers int) *ThreadPool {
	if workers <= 0 {
		workers = 1
	}
	tp := &ThreadPool{
		port:     make(chan *Request, workers*8),
		shutdown: make(chan struct{}),
	}
	tp.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go tp.runWorker(i)
	}
	logging.Op().Info("io thread pool started", "workers", workers)
	return tp
}

// SetDefaultSectorSize sets the sector size reported by OPEN. A value > 0
// takes precedence over the stat block-size query; 0 restores the query
// with defaultSectorSize as its fallback.
func (tp *ThreadPool) SetDefaultSectorSize(n int) { tp.sectorSizeOverride = n }

// Shutdown posts the termination signal and waits for every worker to
// drain its current chain and exit. In-flight requests are not canceled;
// per the engine's failure model, individual requests are never
// cancelable.
func (tp *ThreadPool) Shutdown() {
	close(tp.shutdown)
	tp.wg.Wait()
}

// Submit posts req to the completion port. req must already be filled in
// (path/buffer/amount/callback/hints) and owned by the caller's
// RequestPool. Chained requests returned from a callback must not be
// submitted; they are dispatched in-process.
func (tp *ThreadPool) Submit(req *Request) {
	req.state = Submitted
	req.submitTS = time.Now()
	tp.port <- req
}

func (tp *ThreadPool) runWorker(threadID int) {
	defer tp.wg.Done()
	for {
		select {
		case <-tp.shutdown:
			return
		case req := <-tp.port:
			if req == nil {
				return
			}
			tp.drive(req, threadID)
		}
	}
}

// drive runs req to completion and follows any chained requests the
// callback returns, entirely on this worker, bypassing the port.
func (tp *ThreadPool) drive(req *Request, threadID int) {
	for req != nil {
		req.state = Launched
		req.launchTS = time.Now()

		var span trace.Span
		if telemetry.Enabled() {
			_, span = telemetry.StartIOSpan(context.Background(), req.typ.String())
		}

		result := tp.execute(req)

		if span != nil {
			if result.Err != nil {
				telemetry.SetSpanError(span, result.Err)
			} else {
				telemetry.SetSpanOK(span)
			}
			span.End()
		}

		req.state = Completed
		req.finishTS = time.Now()

		profile := Profile{
			QueueDelay: req.launchTS.Sub(req.submitTS),
			ExecTime:   req.finishTS.Sub(req.launchTS),
			ThreadID:   threadID,
		}
		metrics.Active().ObserveIOQueueDelay(req.typ.String(), float64(profile.QueueDelay.Microseconds())/1000)
		metrics.Active().ObserveIOExecDuration(req.typ.String(), float64(profile.ExecTime.Microseconds())/1000)

		var next *Request
		if req.onComplete != nil {
			next = req.onComplete(result, req.userContext, profile)
		}

		if req.pool != nil {
			req.pool.Return(req)
		}
		req = next
	}
}

func (tp *ThreadPool) execute(req *Request) Result {
	switch req.typ {
	case NOOP:
		return Result{Success: true}
	case OPEN:
		return tp.executeOpen(req)
	case READ:
		return tp.executeRead(req)
	case WRITE:
		return tp.executeWrite(req)
	case FLUSH:
		return tp.executeFlush(req)
	case CLOSE:
		return tp.executeClose(req)
	default:
		return Result{Success: false, Err: corerr.New(corerr.IOOpenFailed, "ioengine.ThreadPool.execute", "unknown request type")}
	}
}

func (tp *ThreadPool) executeOpen(req *Request) Result {
	const op = "ioengine.ThreadPool.executeOpen"
	flags := os.O_RDONLY
	if req.hints&HintWrite != 0 {
		flags = os.O_RDWR
	}
	if req.hints&HintCreate != 0 {
		flags |= os.O_CREATE
	}
	if req.hints&HintTruncate != 0 {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(req.path, flags, 0o644)
	if err != nil {
		return Result{Success: false, Err: corerr.Wrap(corerr.IOOpenFailed, op, "open failed", err)}
	}

	// Non-destructive preallocation: only grows the file, matching the
	// source's seek+SetEndOfFile+seek-back behavior, which never shrinks a
	// file that already exceeds the requested size.
	if req.hints&HintPreallocate != 0 && req.amount > 0 {
		if fi, statErr := f.Stat(); statErr == nil && fi.Size() < int64(req.amount) {
			_ = f.Truncate(int64(req.amount))
		}
	}

	req.file = f
	var size int64
	if fi, statErr := f.Stat(); statErr == nil {
		size = fi.Size()
	}
	return Result{Success: true, FileSize: size, SectorSize: tp.sectorSize(f)}
}

func (tp *ThreadPool) sectorSize(f *os.File) int {
	if tp.sectorSizeOverride > 0 {
		return tp.sectorSizeOverride
	}
	if fi, err := f.Stat(); err == nil {
		if st, ok := fi.Sys().(*syscall.Stat_t); ok && st.Blksize > 0 {
			return int(st.Blksize)
		}
	}
	return defaultSectorSize
}

func (tp *ThreadPool) executeRead(req *Request) Result {
	const op = "ioengine.ThreadPool.executeRead"
	n, err := req.file.ReadAt(req.buf[:req.amount], req.baseOffset+req.fileOffset)
	if err != nil && err != io.EOF {
		return Result{Success: false, BytesTransferred: n, Err: corerr.Wrap(corerr.IOReadFailed, op, "read failed", err)}
	}
	return Result{Success: true, BytesTransferred: n, EOF: err == io.EOF}
}

func (tp *ThreadPool) executeWrite(req *Request) Result {
	const op = "ioengine.ThreadPool.executeWrite"
	n, err := req.file.WriteAt(req.buf[:req.amount], req.baseOffset+req.fileOffset)
	if err != nil {
		return Result{Success: false, BytesTransferred: n, Err: corerr.Wrap(corerr.IOWriteFailed, op, "write failed", err)}
	}
	return Result{Success: true, BytesTransferred: n}
}

func (tp *ThreadPool) executeFlush(req *Request) Result {
	if err := req.file.Sync(); err != nil {
		return Result{Success: false, Err: err}
	}
	return Result{Success: true}
}

func (tp *ThreadPool) executeClose(req *Request) Result {
	if req.file == nil {
		return Result{Success: true}
	}
	err := req.file.Close()
	req.file = nil
	if err != nil {
		return Result{Success: false, Err: err}
	}
	return Result{Success: true}
}
