// Package parallel provides the fixed worker pool and tile grid used to split
// frames into independent units of work.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Job is a unit of work. worker is the index in [0, Workers) of the goroutine
// running the job, so jobs may use per-worker scratch state without locking.
type Job func(worker int)

// WorkerPool is a fixed pool of goroutines.
//
// Each worker has its own queue and steals from other queues when its own is
// empty, which balances load when some jobs, such as tiles with more geometry,
// are slower than others.
//
// WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan Job
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)
	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan Job, workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan Job, queueSize)
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(id)
			return
		case job := <-myQueue:
			job(id)
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen(id)
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(id)
				return
			case job := <-myQueue:
				job(id)
			}
		}
	}
}

func (p *WorkerPool) drainQueue(id int) {
	for {
		select {
		case job := <-p.workQueues[id]:
			job(id)
		default:
			return
		}
	}
}

// steal takes a job from another worker's queue, or returns nil if all are empty.
func (p *WorkerPool) steal(myID int) Job {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case job := <-p.workQueues[i]:
			return job
		default:
		}
	}
	return nil
}

// ExecuteAll distributes jobs across workers and waits for all of them to complete.
// If the pool is closed the jobs run on the calling goroutine as worker 0.
func (p *WorkerPool) ExecuteAll(jobs []Job) {
	if len(jobs) == 0 {
		return
	}
	if !p.running.Load() {
		for _, job := range jobs {
			job(0)
		}
		return
	}
	var completion sync.WaitGroup
	completion.Add(len(jobs))
	for i, job := range jobs {
		job := job
		wrapped := func(worker int) {
			defer completion.Done()
			job(worker)
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			completion.Done()
		}
	}
	completion.Wait()
}

// Close stops the pool after running all queued jobs. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }
