package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/rotorcore/corert/internal/ioengine"
)

func runIOBenchmark(io *ioengine.ThreadPool, poolSize, requestCount int) error {
	reqPool := ioengine.NewRequestPool(poolSize)

	var wg sync.WaitGroup
	wg.Add(requestCount)

	start := time.Now()
	for i := 0; i < requestCount; i++ {
		req := reqPool.Allocate()
		for req == nil {
			req = reqPool.Allocate()
		}
		req.Reset(ioengine.NOOP, "", nil, 0, 0)
		req.WithCallback(func(result ioengine.Result, ctx interface{}, profile ioengine.Profile) *ioengine.Request {
			wg.Done()
			return nil
		}, nil)
		io.Submit(req)
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("io engine NOOP requests: %d in %s (%.0f req/sec)\n",
		requestCount, elapsed, float64(requestCount)/elapsed.Seconds())
	return nil
}
