// Package testutil provides shared helpers for exercising stores and
// services under concurrency in tests.
package testutil

import (
	"errors"
	"sync"

	"idvault/internal/sentinel"
)

// Result summarizes a RunConcurrent execution. Conflicts and NotFound are
// split out because many store invariants are expressed in terms of them:
// "N attempts, one success, N-1 conflicts".
type Result struct {
	Successes int
	Conflicts int
	NotFound  int
	Others    []error
}

// RunConcurrent invokes fn from n goroutines at once, synchronized on a
// single start gate to maximize interleaving, and tallies the outcomes.
func RunConcurrent(n int, fn func(idx int) error) Result {
	var (
		start = make(chan struct{})
		wg    sync.WaitGroup
		mu    sync.Mutex
		res   Result
	)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Successes++
			case errors.Is(err, sentinel.ErrConflict):
				res.Conflicts++
			case errors.Is(err, sentinel.ErrNotFound):
				res.NotFound++
			default:
				res.Others = append(res.Others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return res
}
