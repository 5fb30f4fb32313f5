package classify

import (
	"context"
	"sync"
)

// DefaultWorkers is the process-wide limit on concurrent model calls.
const DefaultWorkers = 5

// Pool bounds in-flight classifications across all sessions.
type Pool struct {
	slots      chan struct{}
	classifier Classifier
}

func NewPool(size int, classifier Classifier) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	return &Pool{slots: make(chan struct{}, size), classifier: classifier}
}

// Size is the number of concurrent calls the pool admits.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// Run classifies reqs with at most Size workers for this session, each call
// holding a shared slot. onResult is invoked serially with the request index.
// After ctx is cancelled no new call starts and late results are dropped; Run
// then returns the cancellation cause.
func (p *Pool) Run(ctx context.Context, reqs []Request, onResult func(int, Outcome)) error {
	type job struct {
		index int
		req   Request
	}

	jobs := make(chan job)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	workers := min(p.Size(), len(reqs))
	for range workers {
		wg.Go(func() {
			for j := range jobs {
				if ctx.Err() != nil {
					continue
				}
				select {
				case p.slots <- struct{}{}:
				case <-ctx.Done():
					continue
				}
				if ctx.Err() != nil {
					<-p.slots
					continue
				}
				outcome := p.classifier.Classify(ctx, j.req)
				<-p.slots

				if ctx.Err() != nil {
					continue
				}
				mu.Lock()
				onResult(j.index, outcome)
				mu.Unlock()
			}
		})
	}

feed:
	for i, req := range reqs {
		select {
		case jobs <- job{index: i, req: req}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}
