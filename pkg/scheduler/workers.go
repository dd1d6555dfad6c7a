package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
)

// Drain runs a bounded worker pool over the backlog until no eligible work
// remains or the context is cancelled, returning the number of items
// processed. With parallelism 1 it degrades to the sequential loop. Worker
// failures are independent: each failed item is recorded and its worker
// continues with the next eligible item.
func (s *Scheduler) Drain(ctx context.Context, parallelism int) (int, error) {
	if parallelism < 1 {
		parallelism = 1
	}

	var processed atomic.Int64
	var firstErr error
	var errOnce sync.Once
	var wg sync.WaitGroup

	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				ok, err := s.ProcessNextItem(ctx)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				if !ok {
					// An in-flight worker keeps scanning after its item
					// completes, so items unblocked later are still picked
					// up; exiting here only reduces parallelism.
					return
				}
				processed.Add(1)
			}
		}()
	}

	wg.Wait()
	return int(processed.Load()), firstErr
}
