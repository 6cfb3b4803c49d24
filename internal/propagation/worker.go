package propagation

import (
	"math"
	"sync"

	"github.com/star/satpredict/internal/timebase"
)

// sampleJob is one elevation evaluation in a crossing scan.
type sampleJob struct {
	index int
	jd    timebase.JulianDay
}

// WorkerPool evaluates elevation samples on a fixed number of goroutines.
type WorkerPool struct {
	workers int
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers}
}

// Sample evaluates fn at every time in times and returns the results in the
// same order. Evaluations that fail are reported as NaN.
func (wp *WorkerPool) Sample(times []timebase.JulianDay, fn func(timebase.JulianDay) (float64, error)) []float64 {
	out := make([]float64, len(times))
	if len(times) == 0 {
		return out
	}

	workers := min(wp.workers, len(times))
	jobs := make(chan sampleJob, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				v, err := fn(job.jd)
				if err != nil {
					v = math.NaN()
				}
				// Each index is written by exactly one worker.
				out[job.index] = v
			}
		}()
	}

	for i, jd := range times {
		jobs <- sampleJob{index: i, jd: jd}
	}
	close(jobs)
	wg.Wait()

	return out
}
