package photom

import (
	"sync"
)

type workerJob struct {
	Index int
	Err   error
}

// runConcurrently uses a pool of goroutines to call fn(i) for every i
// in [0,n). Callers write their results into slots indexed by i, so
// the outcome does not depend on scheduling. If any calls fail, the
// error from the lowest index is returned.
func runConcurrently(n, nWorkers int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	if nWorkers <= 0 {
		nWorkers = 1
	}
	if nWorkers > n {
		nWorkers = n
	}

	var wg sync.WaitGroup
	jobsChan := make(chan workerJob, n)
	resultsChan := make(chan workerJob, n)

	// Kick off worker pool
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				job.Err = fn(job.Index)
				resultsChan <- job
			}
		}()
	}

	// Feed in jobs
	for i := 0; i < n; i++ {
		jobsChan <- workerJob{Index: i}
	}

	close(jobsChan)
	wg.Wait()
	close(resultsChan)

	var firstErr error
	firstIdx := n
	for result := range resultsChan {
		if result.Err != nil && result.Index < firstIdx {
			firstIdx = result.Index
			firstErr = result.Err
		}
	}

	return firstErr
}
