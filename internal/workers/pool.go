// Package workers runs independent jobs on a bounded pool of goroutines.
package workers

import (
	"sync"
)

// WorkerPool manages a pool of worker goroutines
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10 // Default to 10 workers
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// Size returns the number of workers
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// Map applies fn to every item in parallel and returns the results in input order.
// fn must capture its own failures in Out; one item never stops the others.
func Map[In, Out any](wp *WorkerPool, items []In, fn func(In) Out) []Out {
	n := len(items)
	if n == 0 {
		return []Out{}
	}

	jobs := make(chan jobItem[In], n)
	results := make(chan resultItem[Out], n)

	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n // Don't spawn more workers than items
	}

	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(jobs, results, fn)
		}()
	}

	for idx, item := range items {
		jobs <- jobItem[In]{index: idx, item: item}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Out, n)
	for result := range results {
		out[result.index] = result.value
	}
	return out
}

type jobItem[In any] struct {
	index int
	item  In
}

type resultItem[Out any] struct {
	index int
	value Out
}

func worker[In, Out any](jobs <-chan jobItem[In], results chan<- resultItem[Out], fn func(In) Out) {
	for job := range jobs {
		results <- resultItem[Out]{index: job.index, value: fn(job.item)}
	}
}
