package reconcile

import (
	"context"
	"sync"
)

type deleteWorker struct {
	ctx context.Context
	sem chan struct{}
	wg  sync.WaitGroup
}

func newDeleteWorker(ctx context.Context, concurrency int) *deleteWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &deleteWorker{
		ctx: ctx,
		sem: make(chan struct{}, concurrency),
	}
}

func (w *deleteWorker) submit(fn func()) bool {
	select {
	case <-w.ctx.Done():
		return false
	default:
	}

	w.wg.Go(func() {
		w.sem <- struct{}{}
		defer func() { <-w.sem }()
		fn()
	})
	return true
}

func (w *deleteWorker) wait() {
	w.wg.Wait()
}
