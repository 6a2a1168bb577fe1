package sim

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ThreadPool bounds the intra-rank parallelism. Cell groups and the
// parallel parts of construction run on it; one pool is shared per
// execution context.
type ThreadPool struct {
	threads int
}

// NewThreadPool creates a pool of the given width. Zero or negative means
// one worker per CPU.
func NewThreadPool(threads int) *ThreadPool {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &ThreadPool{threads: threads}
}

// Threads is the pool width.
func (p *ThreadPool) Threads() int { return p.threads }

// ParallelFor runs body(i) for i in [0, n) across the pool and joins.
// Bodies must not touch shared mutable state; the first error wins.
func (p *ThreadPool) ParallelFor(n int, body func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if p.threads == 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := body(i); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(p.threads)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error { return body(i) })
	}
	return g.Wait()
}
