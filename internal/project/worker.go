package project

import (
	"context"
	"path/filepath"
	"sync"
)

func joinClean(root, name string) string {
	return filepath.Clean(filepath.Join(root, name))
}

// workerPool fans a fixed number of indexed jobs across bounded workers.
// Each job is self-contained, so workers share nothing but the job feed;
// cancellation is checked between jobs only.
type workerPool struct {
	size int
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}
	return &workerPool{size: size}
}

func (w *workerPool) run(ctx context.Context, jobs int, work func(i int)) {
	if jobs == 0 {
		return
	}
	size := w.size
	if size > jobs {
		size = jobs
	}

	feed := make(chan int)
	var wg sync.WaitGroup
	wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer wg.Done()
			for job := range feed {
				work(job)
			}
		}()
	}

	for i := 0; i < jobs; i++ {
		select {
		case feed <- i:
		case <-ctx.Done():
			close(feed)
			wg.Wait()
			return
		}
	}
	close(feed)
	wg.Wait()
}
