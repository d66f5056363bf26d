package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// DefaultWorkers is the pool size used when none is configured.
func DefaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// runPool runs fn for every item on a bounded worker pool. Results must be
// written by index into caller-owned slices so that consumers never observe
// completion order. A panic inside fn is recovered and reported through
// onPanic for that item only. runPool returns ctx.Err() if the context was
// cancelled before every item was taken.
func runPool[T any](
	ctx context.Context,
	workers int,
	items []T,
	fn func(ctx context.Context, i int, item T),
	onPanic func(i int, item T, recovered interface{}),
) error {
	if len(items) == 0 {
		return nil
	}

	workerCount := workers
	if workerCount <= 0 {
		workerCount = DefaultWorkers()
	}
	if len(items) < workerCount {
		workerCount = len(items)
	}

	workQueue := make(chan int, len(items))
	for i := range items {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := range workQueue {
				select {
				case <-ctx.Done():
					return
				default:
				}
				runItem(ctx, i, items[i], fn, onPanic)
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func runItem[T any](
	ctx context.Context,
	i int,
	item T,
	fn func(ctx context.Context, i int, item T),
	onPanic func(i int, item T, recovered interface{}),
) {
	defer func() {
		if r := recover(); r != nil {
			if onPanic == nil {
				panic(fmt.Sprintf("worker pool: unhandled panic: %v", r))
			}
			onPanic(i, item, r)
		}
	}()
	fn(ctx, i, item)
}
