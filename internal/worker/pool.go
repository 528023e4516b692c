package worker

import "sync"

type task func()

// Pool runs background tasks on a fixed set of goroutines over a bounded
// queue.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan task
}

func NewPool(n int) *Pool {
	p := &Pool{jobs: make(chan task, 1024)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Submit blocks when the queue is full.
func (p *Pool) Submit(f task) { p.jobs <- f }

// TrySubmit never blocks; it reports whether the task was accepted. Used for
// fire-and-forget work that must not back-pressure the request path.
func (p *Pool) TrySubmit(f task) bool {
	select {
	case p.jobs <- f:
		return true
	default:
		return false
	}
}

// Depth is the number of queued tasks not yet picked up.
func (p *Pool) Depth() int { return len(p.jobs) }

func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}
