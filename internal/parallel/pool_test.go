package parallel

import (
	"image"
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()
	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
	zero := NewWorkerPool(0)
	defer zero.Close()
	if zero.Workers() != runtime.GOMAXPROCS(0) {
		t.Errorf("Workers() = %d, want GOMAXPROCS", zero.Workers())
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()
	const numJobs = 100
	var counter atomic.Int64
	var badWorker atomic.Bool
	jobs := make([]Job, numJobs)
	for i := range jobs {
		jobs[i] = func(worker int) {
			if worker < 0 || worker >= pool.Workers() {
				badWorker.Store(true)
			}
			counter.Add(1)
		}
	}
	pool.ExecuteAll(jobs)
	if got := counter.Load(); got != numJobs {
		t.Errorf("counter = %d, want %d", got, numJobs)
	}
	if badWorker.Load() {
		t.Error("job received out of range worker index")
	}
}

func TestWorkerPool_PerWorkerState(t *testing.T) {
	// Jobs write to per-worker slots without synchronization.
	pool := NewWorkerPool(3)
	defer pool.Close()
	sums := make([]int, pool.Workers())
	jobs := make([]Job, 300)
	for i := range jobs {
		jobs[i] = func(worker int) { sums[worker]++ }
	}
	pool.ExecuteAll(jobs)
	total := 0
	for _, s := range sums {
		total += s
	}
	if total != len(jobs) {
		t.Errorf("total = %d, want %d", total, len(jobs))
	}
}

func TestWorkerPool_Closed(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("closed pool reports running")
	}
	ran := 0
	pool.ExecuteAll([]Job{func(int) { ran++ }, func(int) { ran++ }})
	if ran != 2 {
		t.Errorf("closed pool ran %d jobs, want 2", ran)
	}
}

func TestGrid(t *testing.T) {
	g := NewGrid(100, 50, 16)
	if g.TilesX() != 7 || g.TilesY() != 4 || g.Len() != 28 {
		t.Fatalf("grid %dx%d (%d), want 7x4 (28)", g.TilesX(), g.TilesY(), g.Len())
	}
	if r := g.Rect(6, 3); r != image.Rect(96, 48, 100, 50) {
		t.Errorf("edge tile rect = %v", r)
	}
	if g.Contains(7, 0) || g.Contains(0, -1) || !g.Contains(6, 3) {
		t.Error("Contains bounds incorrect")
	}
	tx, ty := g.Coords(g.Index(5, 2))
	if tx != 5 || ty != 2 {
		t.Errorf("Coords(Index(5,2)) = (%d,%d)", tx, ty)
	}
	covered := make([]bool, g.Len())
	g.Chunks(5, func(start, end int) {
		for i := start; i < end; i++ {
			if covered[i] {
				t.Errorf("tile %d covered twice", i)
			}
			covered[i] = true
		}
	})
	for i, c := range covered {
		if !c {
			t.Errorf("tile %d not covered", i)
		}
	}
	if empty := NewGrid(0, 10, 8); empty.Len() != 0 {
		t.Errorf("empty grid has %d tiles", empty.Len())
	}
}
